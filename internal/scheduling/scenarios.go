// Package scheduling computes advisory staffing scenarios for a haul.
package scheduling

import (
	"fmt"
	"math"
	"time"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/timeutil"
)

// Legal and efficiency constants used by the calculator.
const (
	SoloMaxDrivingHoursPerCycle = 10.0
	SoloRestHoursPerCycle       = 14.0
	TeamEfficiency              = 0.95
	ExpressEfficiency           = 0.98
)

// ScenarioName identifies one staffing plan.
type ScenarioName string

const (
	ScenarioSolo    ScenarioName = "SOLO"
	ScenarioTeam    ScenarioName = "TEAM"
	ScenarioExpress ScenarioName = "EXPRESS"
)

// Scenario is one hypothetical staffing plan evaluated against the deadline.
type Scenario struct {
	Name               ScenarioName `json:"name"`
	Drivers            int          `json:"drivers"`
	TotalHours         float64      `json:"total_hours"`
	WorkHoursPerDriver float64      `json:"work_hours_per_driver"`
	Feasible           bool         `json:"feasible"`
	OverrunHours       float64      `json:"overrun_hours"`
	Note               string       `json:"note"`
}

// ScenarioPlan is the calculator output. It is never persisted.
type ScenarioPlan struct {
	DistanceKm         float64  `json:"distance_km"`
	DriveHours         float64  `json:"drive_hours"`
	DeadlineHours      float64  `json:"deadline_hours"`
	Solo               Scenario `json:"solo"`
	Team               Scenario `json:"team"`
	Express            Scenario `json:"express"`
	Feasible           bool     `json:"feasible"`
	RecommendedDrivers int      `json:"recommended_drivers"`
	Recommendation     string   `json:"recommendation"`
}

// Scenarios returns the three plans in recommendation order.
func (p ScenarioPlan) Scenarios() []Scenario {
	return []Scenario{p.Solo, p.Team, p.Express}
}

// ComputeScenarios evaluates solo, team and express staffing for a haul.
// It is pure: identical inputs always produce identical output.
func ComputeScenarios(distanceKm, driveHours float64, pickupTime, deadlineTime time.Time) (ScenarioPlan, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return ScenarioPlan{}, apperr.Validation("distance must be a non-negative number of kilometres")
	}
	if math.IsNaN(driveHours) || math.IsInf(driveHours, 0) || driveHours <= 0 {
		return ScenarioPlan{}, apperr.Validation("estimated driving hours must be positive")
	}
	if pickupTime.IsZero() || deadlineTime.IsZero() {
		return ScenarioPlan{}, apperr.Validation("pickup and deadline times are required")
	}
	if !deadlineTime.After(pickupTime) {
		return ScenarioPlan{}, apperr.Validation("deadline must be after pickup time")
	}

	deadlineHours := timeutil.HoursBetween(pickupTime, deadlineTime)

	soloDays := math.Ceil(driveHours / SoloMaxDrivingHoursPerCycle)
	soloTotal := timeutil.RoundTo1(driveHours + (soloDays-1)*SoloRestHoursPerCycle)
	solo := evaluate(ScenarioSolo, 1, soloTotal, soloTotal, deadlineHours,
		fmt.Sprintf("One driver over %d day(s): %.0fh driving legs with %.0fh rest between them", int(soloDays), SoloMaxDrivingHoursPerCycle, SoloRestHoursPerCycle))

	teamTotal := timeutil.RoundTo1(driveHours / TeamEfficiency)
	team := evaluate(ScenarioTeam, 2, teamTotal, teamTotal/2, deadlineHours,
		"Two drivers alternate at the wheel with brief stops and no overnight rest")

	expressTotal := timeutil.RoundTo1(driveHours / ExpressEfficiency)
	express := evaluate(ScenarioExpress, 3, expressTotal, expressTotal/3, deadlineHours,
		"Three drivers rotate for near-continuous driving")

	plan := ScenarioPlan{
		DistanceKm:    distanceKm,
		DriveHours:    driveHours,
		DeadlineHours: deadlineHours,
		Solo:          solo,
		Team:          team,
		Express:       express,
	}

	switch {
	case solo.Feasible:
		plan.RecommendedDrivers = 1
		plan.Recommendation = fmt.Sprintf("Recommend SOLO: one driver finishes in %.1fh within the %.1fh window at the lowest cost", solo.TotalHours, deadlineHours)
	case team.Feasible:
		plan.RecommendedDrivers = 2
		plan.Recommendation = fmt.Sprintf("Recommend TEAM: a solo driver cannot make the deadline, two drivers finish in %.1fh", team.TotalHours)
	case express.Feasible:
		plan.RecommendedDrivers = 3
		plan.Recommendation = fmt.Sprintf("Recommend EXPRESS: only three rotating drivers finish in time (%.1fh)", express.TotalHours)
	default:
		plan.Recommendation = fmt.Sprintf("Warning: no staffing plan meets the %.1fh deadline; the fastest plan needs %.1fh. Extend the deadline or split the haul", deadlineHours, express.TotalHours)
	}
	plan.Feasible = plan.RecommendedDrivers > 0

	return plan, nil
}

func evaluate(name ScenarioName, drivers int, total, perDriver, deadlineHours float64, rationale string) Scenario {
	s := Scenario{
		Name:               name,
		Drivers:            drivers,
		TotalHours:         total,
		WorkHoursPerDriver: perDriver,
		Feasible:           total <= deadlineHours,
	}
	if s.Feasible {
		s.Note = rationale
		return s
	}
	s.OverrunHours = timeutil.RoundTo1(total - deadlineHours)
	s.Note = fmt.Sprintf("Not feasible: exceeds the deadline by %.1fh", s.OverrunHours)
	return s
}
