package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Device Groups
	mux.Handle("GET /api/v1/groups", chain(http.HandlerFunc(h.ListGroups)))
	mux.Handle("POST /api/v1/groups", chain(http.HandlerFunc(h.CreateGroup)))
	mux.Handle("GET /api/v1/groups/{id}", chain(http.HandlerFunc(h.GetGroup)))
	mux.Handle("PUT /api/v1/groups/{id}", chain(http.HandlerFunc(h.UpdateGroup)))
	mux.Handle("DELETE /api/v1/groups/{id}", chain(http.HandlerFunc(h.DeleteGroup)))
	mux.Handle("GET /api/v1/groups/{id}/devices", chain(http.HandlerFunc(h.PreviewGroupDevices)))

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/activate", chain(http.HandlerFunc(h.ActivateWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/pause", chain(http.HandlerFunc(h.PauseWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/resume", chain(http.HandlerFunc(h.ResumeWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/cancel", chain(http.HandlerFunc(h.CancelWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/retry-failed", chain(http.HandlerFunc(h.RetryFailedExecutions)))
	mux.Handle("GET /api/v1/workflows/{id}/executions", chain(http.HandlerFunc(h.ListWorkflowExecutions)))
	mux.Handle("GET /api/v1/workflows/{id}/progress", chain(http.HandlerFunc(h.GetWorkflowProgress)))

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))

	// Activity log
	mux.Handle("GET /api/v1/activity-log", chain(http.HandlerFunc(h.ListActivityLog)))

	// Devices
	mux.Handle("GET /api/v1/devices", chain(http.HandlerFunc(h.ListDevices)))
	mux.Handle("GET /api/v1/devices/{id}", chain(http.HandlerFunc(h.GetDevice)))

	// Events
	mux.Handle("POST /api/v1/events/device-connect", chain(http.HandlerFunc(h.DeviceConnectEvent)))
}
