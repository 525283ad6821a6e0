package domain

import "strings"

// Constraints controls which driver -> pickup pairings the optimizer may use.
// It is explicit input to every run; nothing is inferred from the records.
type Constraints struct {
	// When false, a driver may only take pickups of its own institute.
	AllowInterInstitute bool
	// When true, unequal driver and pickup counts are solved by leaving the
	// surplus unassigned instead of failing.
	AllowUnassigned bool
	// Minimum licensed experience (years) a driver needs to take a pickup of
	// the given category. Unknown categories require 0.
	MinExperience map[string]float64
	// When true, a driver's current pickup must also satisfy the rules above.
	// By default the status quo is always allowed so the original pairing
	// stays feasible.
	EnforceOnOriginal bool
	// Shared depots: drivers whose driver point name matches a key may only
	// take pickups of the listed institutes. An empty list means the driver's
	// own institute.
	Depots map[string][]string
}

// DefaultConstraints returns the stock policy: cross-institute swaps allowed,
// a strict bijection and the category experience ladder.
func DefaultConstraints() Constraints {
	return Constraints{
		AllowInterInstitute: true,
		AllowUnassigned:     false,
		MinExperience: map[string]float64{
			"A+": 10,
			"A":  3,
			"B":  0,
			"C":  0,
		},
		Depots: map[string][]string{},
	}
}

// Permits reports whether driver may take pickup's route. The caller decides
// whether the pairing is the status quo; original pairings are always allowed.
func (c Constraints) Permits(driver, pickup VehicleRecord) bool {
	sameInstitute := strings.EqualFold(strings.TrimSpace(driver.Institute), strings.TrimSpace(pickup.Institute))
	if !c.AllowInterInstitute && !sameInstitute {
		return false
	}

	if allowed, ok := c.depotRule(driver.Driver.Name); ok {
		if len(allowed) == 0 {
			if !sameInstitute {
				return false
			}
		} else if !containsFold(allowed, pickup.Institute) {
			return false
		}
	}

	if min, ok := c.MinExperience[strings.TrimSpace(pickup.Category)]; ok && driver.LicensedExperience < min {
		return false
	}

	return true
}

func (c Constraints) depotRule(pointName string) ([]string, bool) {
	name := strings.TrimSpace(pointName)
	if name == "" {
		return nil, false
	}
	for depot, allowed := range c.Depots {
		if strings.EqualFold(strings.TrimSpace(depot), name) {
			return allowed, true
		}
	}
	return nil, false
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
