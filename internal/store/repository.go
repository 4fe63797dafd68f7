package store

import (
	"context"
	"errors"

	"github.com/busprobridge/core/internal/device"
)

// DeviceRepository implements device.Repository on top of Store, persisting
// the catalogue as one field of the shared Document alongside cover motion
// state and UI config.
type DeviceRepository struct {
	store *Store
}

// NewDeviceRepository wraps store as a device.Repository.
func NewDeviceRepository(store *Store) *DeviceRepository {
	return &DeviceRepository{store: store}
}

// Load reads the catalogue from the shared document.
func (r *DeviceRepository) Load(ctx context.Context) (device.Catalogue, error) {
	doc, err := r.store.ReadRaw(ctx)
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return device.NewCatalogue(), nil
		}
		return device.Catalogue{}, err
	}
	return doc.Catalogue, nil
}

// Save writes the catalogue into the shared document, preserving whatever
// cover state and UI config are currently on disk.
func (r *DeviceRepository) Save(ctx context.Context, c device.Catalogue) error {
	doc, err := r.store.ReadRaw(ctx)
	if err != nil && !errors.Is(err, ErrEmpty) {
		return err
	}
	doc.Catalogue = c
	return r.store.Write(ctx, doc)
}

var _ device.Repository = (*DeviceRepository)(nil)
