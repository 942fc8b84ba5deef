package domain

import "time"

// DeviceSnapshot — снимок атрибутов CPE-устройства.
//
// Снимок поставляется внешним хранилищем (ACS-головой, принимающей
// Inform-сессии) и внутри движка только читается. Правила групп
// вычисляются поверх этих полей.
type DeviceSnapshot struct {
	// DeviceID — уникальный идентификатор устройства (OUI-Serial).
	DeviceID string `json:"device_id"`

	// OUI — первые три октета MAC производителя.
	OUI string `json:"oui"`

	// Manufacturer — производитель устройства.
	Manufacturer string `json:"manufacturer"`

	// ProductClass — модель/класс устройства.
	ProductClass string `json:"product_class"`

	// SoftwareVersion — версия прошивки.
	SoftwareVersion string `json:"software_version"`

	// HardwareVersion — аппаратная ревизия.
	HardwareVersion string `json:"hardware_version"`

	// SerialNumber — серийный номер.
	SerialNumber string `json:"serial_number"`

	// IPAddress — последний известный IP устройства.
	IPAddress string `json:"ip_address"`

	// Online — было ли устройство на связи в последнем интервале опроса.
	Online bool `json:"online"`

	// SubscriberID — идентификатор абонента, за которым закреплено устройство.
	SubscriberID string `json:"subscriber_id,omitempty"`

	// Tags — произвольные операторские метки.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt — когда устройство впервые появилось в инвентаре.
	CreatedAt time.Time `json:"created_at"`
}
