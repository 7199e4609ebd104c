package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

// Bid acceptance policies.
const (
	BidAcceptanceOwnerApproval = "owner_approval"
	BidAcceptanceAutoAccept    = "auto_accept"
)

// Policy holds the hour-of-service and staffing rules. The figures are product
// decisions, so they live in a file rather than in code.
type Policy struct {
	// EligibilityWindowHours is the trailing window driving hours are summed over.
	EligibilityWindowHours float64 `yaml:"eligibility_window_hours"`
	// MaxDrivingHoursInWindow is the cap a driver must stay under to take more work.
	MaxDrivingHoursInWindow float64 `yaml:"max_driving_hours_in_window"`
	// BidAcceptance is owner_approval or auto_accept.
	BidAcceptance string `yaml:"bid_acceptance"`
	// CancelAcceptedBefore is the first trip status at which accepted assignments are locked in.
	CancelAcceptedBefore models.TripStatus `yaml:"cancel_accepted_before"`
}

// DefaultPolicy is the 10h per trailing 48h rule with owner approval of bids.
func DefaultPolicy() Policy {
	return Policy{
		EligibilityWindowHours:  48,
		MaxDrivingHoursInWindow: 10,
		BidAcceptance:           BidAcceptanceOwnerApproval,
		CancelAcceptedBefore:    models.TripLoading,
	}
}

// Window returns the eligibility window as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.EligibilityWindowHours * float64(time.Hour))
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, fmt.Errorf("scheduling policy file %s not found", path)
		}
		return p, fmt.Errorf("read scheduling policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse scheduling policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.EligibilityWindowHours <= 0 {
		return fmt.Errorf("eligibility_window_hours must be positive")
	}
	if p.MaxDrivingHoursInWindow <= 0 {
		return fmt.Errorf("max_driving_hours_in_window must be positive")
	}
	if p.MaxDrivingHoursInWindow > p.EligibilityWindowHours {
		return fmt.Errorf("max_driving_hours_in_window cannot exceed eligibility_window_hours")
	}
	switch p.BidAcceptance {
	case BidAcceptanceOwnerApproval, BidAcceptanceAutoAccept:
	default:
		return fmt.Errorf("unknown bid_acceptance %q", p.BidAcceptance)
	}
	if p.CancelAcceptedBefore.Rank() <= models.TripReadyForContract.Rank() {
		return fmt.Errorf("cancel_accepted_before must be a trip status after READY_FOR_CONTRACT")
	}
	return nil
}
