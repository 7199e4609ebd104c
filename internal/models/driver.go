package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DriverAvailability is the coarse availability flag owned by the identity subsystem.
type DriverAvailability string

const (
	DriverAvailable DriverAvailability = "AVAILABLE"
	DriverOnTrip    DriverAvailability = "ON_TRIP"
	DriverOffDuty   DriverAvailability = "OFF_DUTY"
	DriverSuspended DriverAvailability = "SUSPENDED"
)

func (a DriverAvailability) Valid() bool {
	switch a {
	case DriverAvailable, DriverOnTrip, DriverOffDuty, DriverSuspended:
		return true
	}
	return false
}

// Driver represents a truck driver in the identity directory.
// The scheduling core only writes Availability.
type Driver struct {
	ID               string             `json:"id" gorm:"primaryKey;size:64"`
	Name             string             `json:"name"`
	Phone            string             `json:"phone" gorm:"index"` // WhatsApp number
	LicenseNumber    string             `json:"license_number"`
	LicenseExpiresAt *time.Time         `json:"license_expires_at"`
	Verified         bool               `json:"verified" gorm:"default:false"`
	Suspended        bool               `json:"suspended" gorm:"default:false"`
	Availability     DriverAvailability `json:"availability" gorm:"size:16;default:AVAILABLE"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// BeforeCreate generates the ID and normalizes the phone number
func (d *Driver) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Phone != "" && !strings.HasPrefix(d.Phone, "+") {
		d.Phone = "+91" + strings.TrimPrefix(d.Phone, "91")
	}
	if d.Availability == "" {
		d.Availability = DriverAvailable
	}
	return nil
}

// LicenseValidAt reports whether the driver's license is verified and unexpired at t.
func (d *Driver) LicenseValidAt(t time.Time) bool {
	if !d.Verified || d.LicenseNumber == "" {
		return false
	}
	return d.LicenseExpiresAt == nil || d.LicenseExpiresAt.After(t)
}
