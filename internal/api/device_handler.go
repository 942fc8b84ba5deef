package api

import (
	"encoding/json"
	"net/http"

	"github.com/marcelg7/fleetacs/internal/mq"
)

// ListDevices возвращает инвентарь устройств.
// GET /api/v1/devices
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceRepo.ListDevices(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeviceResponse, len(devices))
	for i, d := range devices {
		result[i] = DeviceFromDomain(d)
	}

	List(w, result, len(result))
}

// GetDevice возвращает снимок одного устройства.
// GET /api/v1/devices/{id}
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceRepo.GetDevice(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "device not found") {
		return
	}

	Success(w, DeviceFromDomain(*device))
}

// DeviceConnectEvent принимает событие выхода устройства на связь и
// публикует его в очередь connect-событий. Оркестратор подхватит его
// асинхронно и создаст executions для on_connect workflow.
// POST /api/v1/events/device-connect
func (h *Handler) DeviceConnectEvent(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeInternalError, "event queue unavailable")
		return
	}

	var req DeviceConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.DeviceID == "" {
		BadRequest(w, "device_id is required")
		return
	}

	// Устройство обязано быть в инвентаре
	if _, err := h.deviceRepo.GetDevice(r.Context(), req.DeviceID); err != nil {
		HandleRepoError(w, h.logger, err, "device not found")
		return
	}

	err := h.publisher.PublishDeviceConnected(r.Context(), mq.DeviceConnectedPayload{
		DeviceID: req.DeviceID,
	})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: map[string]string{
		"device_id": req.DeviceID,
		"status":    "accepted",
	}})
}
