package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/thinglink-core/internal/pairing"
)

// PairedDevice is one entry of the recent list.
type PairedDevice struct {
	DevID     string       `json:"dev_id"`
	Name      string       `json:"name"`
	IconURL   string       `json:"icon_url,omitempty"`
	ProductID string       `json:"product_id,omitempty"`
	UUID      string       `json:"uuid,omitempty"`
	HomeID    string       `json:"home_id,omitempty"`
	Mode      pairing.Mode `json:"mode,omitempty"`
	PairedAt  time.Time    `json:"paired_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// FromPairing builds a recent-list entry from an activation result.
func FromPairing(dev pairing.PairedDevice, homeID string, mode pairing.Mode, at time.Time) PairedDevice {
	return PairedDevice{
		DevID:     dev.DevID,
		Name:      dev.Name,
		IconURL:   dev.IconURL,
		ProductID: dev.ProductID,
		UUID:      dev.UUID,
		HomeID:    homeID,
		Mode:      mode,
		PairedAt:  at,
		UpdatedAt: at,
	}
}

// Validate checks the fields the database requires.
func (d PairedDevice) Validate() error {
	if d.DevID == "" {
		return fmt.Errorf("%w: dev_id is required", ErrInvalidDevice)
	}
	if d.PairedAt.IsZero() {
		return fmt.Errorf("%w: paired_at is required", ErrInvalidDevice)
	}
	return nil
}
