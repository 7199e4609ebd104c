package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/config"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

// AcceptancePolicy decides whether a fresh bid is accepted without the owner.
type AcceptancePolicy interface {
	Name() string
	AutoAccept(ctx context.Context, trip *models.Trip, assignment *models.Assignment) bool
}

// OwnerApproval leaves every bid OFFERED until the owner acts.
type OwnerApproval struct{}

func (OwnerApproval) Name() string { return config.BidAcceptanceOwnerApproval }

func (OwnerApproval) AutoAccept(context.Context, *models.Trip, *models.Assignment) bool {
	return false
}

// FirstComeAcceptance accepts bids in arrival order while headcount lasts.
// Headcount is already enforced when the bid is stored.
type FirstComeAcceptance struct{}

func (FirstComeAcceptance) Name() string { return config.BidAcceptanceAutoAccept }

func (FirstComeAcceptance) AutoAccept(context.Context, *models.Trip, *models.Assignment) bool {
	return true
}

// AcceptancePolicyFor maps the configured policy name to its implementation.
func AcceptancePolicyFor(name string) (AcceptancePolicy, error) {
	switch name {
	case "", config.BidAcceptanceOwnerApproval:
		return OwnerApproval{}, nil
	case config.BidAcceptanceAutoAccept:
		return FirstComeAcceptance{}, nil
	}
	return nil, fmt.Errorf("unknown bid acceptance policy %q", name)
}

// LicenseChecker validates a driver's license and account flags.
type LicenseChecker interface {
	CheckDriver(ctx context.Context, driver *models.Driver, at time.Time) error
}

// DirectoryLicenseChecker trusts the flags the identity directory keeps on the driver row.
type DirectoryLicenseChecker struct{}

func (DirectoryLicenseChecker) CheckDriver(_ context.Context, driver *models.Driver, at time.Time) error {
	switch {
	case driver.Suspended || driver.Availability == models.DriverSuspended:
		return apperr.Rejected("driver %s is suspended", driver.ID)
	case !driver.Verified:
		return apperr.Rejected("driver %s is not verified", driver.ID)
	case driver.LicenseNumber == "":
		return apperr.Rejected("driver %s has no license on file", driver.ID)
	case !driver.LicenseValidAt(at):
		return apperr.Rejected("driver %s license expired on %s", driver.ID, driver.LicenseExpiresAt.Format("2006-01-02"))
	}
	return nil
}
