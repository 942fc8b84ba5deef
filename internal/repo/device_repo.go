package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// DeviceRepo — доступ к инвентарю устройств.
//
// Таблица devices наполняется ACS-головой по Inform-сессиям; движок
// оркестрации её только читает.
type DeviceRepo struct {
	pool *pgxpool.Pool
}

// NewDeviceRepo создаёт новый DeviceRepo.
func NewDeviceRepo(pool *pgxpool.Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

// ListDevices возвращает снимки всех устройств инвентаря.
func (r *DeviceRepo) ListDevices(ctx context.Context) ([]domain.DeviceSnapshot, error) {
	query := deviceSelect + ` ORDER BY device_id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.DeviceSnapshot
	for rows.Next() {
		dev, err := scanDeviceRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *dev)
	}
	return devices, rows.Err()
}

// GetDevice возвращает снимок одного устройства.
func (r *DeviceRepo) GetDevice(ctx context.Context, deviceID string) (*domain.DeviceSnapshot, error) {
	query := deviceSelect + ` WHERE device_id = $1`
	dev, err := scanDeviceRow(r.pool.QueryRow(ctx, query, deviceID).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return dev, err
}

const deviceSelect = `
	SELECT device_id, oui, manufacturer, product_class,
	       software_version, hardware_version, serial_number,
	       ip_address, online, subscriber_id, tags, created_at
	FROM devices
`

func scanDeviceRow(scan func(...any) error) (*domain.DeviceSnapshot, error) {
	var dev domain.DeviceSnapshot
	var subscriberID *string

	err := scan(
		&dev.DeviceID,
		&dev.OUI,
		&dev.Manufacturer,
		&dev.ProductClass,
		&dev.SoftwareVersion,
		&dev.HardwareVersion,
		&dev.SerialNumber,
		&dev.IPAddress,
		&dev.Online,
		&subscriberID,
		&dev.Tags,
		&dev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}

	if subscriberID != nil {
		dev.SubscriberID = *subscriberID
	}
	return &dev, nil
}
