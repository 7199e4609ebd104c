package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TripStatus is the umbrella lifecycle of a haul.
type TripStatus string

const (
	TripCreated                   TripStatus = "CREATED"
	TripLookingForDriver          TripStatus = "LOOKING_FOR_DRIVER"
	TripReadyForContract          TripStatus = "READY_FOR_CONTRACT"
	TripAwaitingContractSignature TripStatus = "AWAITING_CONTRACT_SIGNATURE"
	TripVehicleHandover           TripStatus = "VEHICLE_HANDOVER"
	TripLoading                   TripStatus = "LOADING"
	TripInTransit                 TripStatus = "IN_TRANSIT"
	TripUnloading                 TripStatus = "UNLOADING"
	TripDelivered                 TripStatus = "DELIVERED"
	TripReturningVehicle          TripStatus = "RETURNING_VEHICLE"
	TripCompleted                 TripStatus = "COMPLETED"
	TripCancelled                 TripStatus = "CANCELLED"
	TripDeleted                   TripStatus = "DELETED"
)

// tripOrder is the forward path; side exits are not part of it.
var tripOrder = []TripStatus{
	TripCreated,
	TripLookingForDriver,
	TripReadyForContract,
	TripAwaitingContractSignature,
	TripVehicleHandover,
	TripLoading,
	TripInTransit,
	TripUnloading,
	TripDelivered,
	TripReturningVehicle,
	TripCompleted,
}

func (s TripStatus) Valid() bool {
	switch s {
	case TripCreated, TripLookingForDriver, TripReadyForContract, TripAwaitingContractSignature,
		TripVehicleHandover, TripLoading, TripInTransit, TripUnloading, TripDelivered,
		TripReturningVehicle, TripCompleted, TripCancelled, TripDeleted:
		return true
	}
	return false
}

// Rank is the position on the forward path, or -1 for side exits.
func (s TripStatus) Rank() int {
	for i, st := range tripOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether the trip can no longer move forward.
func (s TripStatus) Terminal() bool {
	switch s {
	case TripCompleted, TripCancelled, TripDeleted:
		return true
	}
	return false
}

// AcceptsStaffing reports whether assignments may still be created.
func (s TripStatus) AcceptsStaffing() bool {
	switch s {
	case TripCreated, TripLookingForDriver, TripReadyForContract:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal trip move.
// Moves are forward only: the next step on the path, CREATED straight to
// READY_FOR_CONTRACT, CANCELLED from any live state, DELETED before staffing.
func CanTransition(from, to TripStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	switch to {
	case TripCancelled:
		return !from.Terminal()
	case TripDeleted:
		return from == TripCreated || from == TripLookingForDriver || from == TripCancelled
	case TripReadyForContract:
		return from == TripCreated || from == TripLookingForDriver
	}
	if from.Terminal() {
		return false
	}
	return to.Rank() == from.Rank()+1
}

// Trip is the umbrella entity the assignment state machine advances.
type Trip struct {
	ID         string     `json:"id" gorm:"primaryKey;size:64"`
	OwnerID    string     `json:"owner_id" gorm:"size:64;not null;index"`
	OwnerPhone string     `json:"owner_phone"`
	Title      string     `json:"title"`
	DistanceKm float64    `json:"distance_km"`
	Status     TripStatus `json:"status" gorm:"size:32;not null;index"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BeforeCreate generates the trip ID
func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TripCreated
	}
	return nil
}
