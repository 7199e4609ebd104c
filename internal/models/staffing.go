package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostTripStatus tells whether a staffing request still takes bids.
type PostTripStatus string

const (
	PostTripOpen   PostTripStatus = "OPEN"
	PostTripClosed PostTripStatus = "CLOSED"
)

// PostTrip is an owner's staffing request attached to a trip.
type PostTrip struct {
	ID        string           `json:"id" gorm:"primaryKey;size:64"`
	TripID    string           `json:"trip_id" gorm:"size:64;not null;index"`
	OwnerID   string           `json:"owner_id" gorm:"size:64;not null"`
	Title     string           `json:"title"`
	Status    PostTripStatus   `json:"status" gorm:"size:16;default:OPEN"`
	Details   []PostTripDetail `json:"details" gorm:"foreignKey:PostTripID"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// BeforeCreate generates the post trip ID
func (p *PostTrip) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PostTripDetail is the per-role demand of a staffing request.
type PostTripDetail struct {
	ID              string         `json:"id" gorm:"primaryKey;size:64"`
	PostTripID      string         `json:"post_trip_id" gorm:"size:64;not null;index"`
	TripID          string         `json:"trip_id" gorm:"size:64;not null;uniqueIndex:idx_post_trip_details_trip_role"`
	Role            AssignmentRole `json:"role" gorm:"size:16;not null;uniqueIndex:idx_post_trip_details_trip_role"`
	RequiredCount   int            `json:"required_count" gorm:"not null"`
	PricePerPerson  Money          `json:"price_per_person"`
	BonusPerPerson  Money          `json:"bonus_per_person"`
	PickupLocation  Location       `json:"pickup_location" gorm:"embedded;embeddedPrefix:pickup_"`
	DropoffLocation Location       `json:"dropoff_location" gorm:"embedded;embeddedPrefix:dropoff_"`
	PickupTime      *time.Time     `json:"pickup_time"`
	DropoffDeadline *time.Time     `json:"dropoff_deadline"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// BeforeCreate generates the detail ID
func (d *PostTripDetail) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// RoleStaffing summarises headcount for one role of a trip.
type RoleStaffing struct {
	Role     AssignmentRole `json:"role"`
	Required int            `json:"required"`
	Accepted int            `json:"accepted"`
	Offered  int            `json:"offered"`
}

// Open returns the number of slots not held by a non-terminal assignment.
func (r RoleStaffing) Open() int {
	open := r.Required - r.Accepted - r.Offered
	if open < 0 {
		return 0
	}
	return open
}

// StaffingStatus is the headcount picture of a trip.
type StaffingStatus struct {
	TripID       string         `json:"trip_id"`
	TripStatus   TripStatus     `json:"trip_status"`
	Roles        []RoleStaffing `json:"roles"`
	FullyStaffed bool           `json:"fully_staffed"`
}
