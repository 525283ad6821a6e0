package dto

import (
	"deadkm-service/internal/domain"
	"deadkm-service/internal/services"
	"maps"
	"math"
)

// Constraints are request overrides. Unset fields keep the server defaults.
type Constraints struct {
	AllowInterInstitute *bool               `json:"allow_inter_institute,omitempty"`
	AllowUnassigned     *bool               `json:"allow_unassigned,omitempty"`
	EnforceOnOriginal   *bool               `json:"enforce_on_original,omitempty"`
	MinExperience       map[string]float64  `json:"min_experience,omitempty"`
	Depots              map[string][]string `json:"depots,omitempty"`
}

// Apply overlays c on base and returns the result. base is not modified.
func (c *Constraints) Apply(base domain.Constraints) domain.Constraints {
	out := base
	out.MinExperience = maps.Clone(base.MinExperience)
	out.Depots = maps.Clone(base.Depots)
	if c == nil {
		return out
	}
	if c.AllowInterInstitute != nil {
		out.AllowInterInstitute = *c.AllowInterInstitute
	}
	if c.AllowUnassigned != nil {
		out.AllowUnassigned = *c.AllowUnassigned
	}
	if c.EnforceOnOriginal != nil {
		out.EnforceOnOriginal = *c.EnforceOnOriginal
	}
	if out.MinExperience == nil {
		out.MinExperience = map[string]float64{}
	}
	maps.Copy(out.MinExperience, c.MinExperience)
	if out.Depots == nil {
		out.Depots = map[string][]string{}
	}
	maps.Copy(out.Depots, c.Depots)
	return out
}

type OptimizeRequest struct {
	TaskID         string          `json:"task_id"`
	DriverData     []VehicleRecord `json:"driver_data"`
	PickupData     []VehicleRecord `json:"pickup_data"`
	DistanceMatrix *DistanceMatrix `json:"distance_matrix,omitempty"`
	Constraints    *Constraints    `json:"constraints,omitempty"`
}

// AssignmentRow describes one driver's optimized route next to what it
// drove before.
type AssignmentRow struct {
	FromBus          string   `json:"From Bus"`
	ToBus            string   `json:"To Bus"`
	DeadKm           *float64 `json:"Dead KM"`
	DriverSite       string   `json:"Driver Site"`
	DriverPointName  string   `json:"Driver pt name"`
	DriverLat        float64  `json:"Driver pt lat"`
	DriverLon        float64  `json:"Driver pt long"`
	DriverRoute      string   `json:"Driver Route"`
	DriverExperience float64  `json:"Driver Experience"`
	PickupSite       string   `json:"Pickup Site,omitempty"`
	PickupCategory   string   `json:"Pickup Category,omitempty"`
	PickupRoute      string   `json:"Pickup Route,omitempty"`
	PickupPointName  string   `json:"Pickup pt name,omitempty"`
	PickupLat        *float64 `json:"Pickup pt lat,omitempty"`
	PickupLon        *float64 `json:"Pickup pt long,omitempty"`
	OriginalDeadKm   *float64 `json:"Original dead km"`
	OptimizedDeadKm  *float64 `json:"Optimized dead km"`
}

type Insights struct {
	TotalRoutes    int     `json:"total_routes"`
	OriginalDeadKm float64 `json:"original_dead_km"`
	TotalDeadKm    float64 `json:"total_dead_km"`
	TotalMinimized float64 `json:"total_minimized"`
	TotalSwaps     int     `json:"total_swaps"`
	InterInstitute int     `json:"inter_institute"`
	IntraInstitute int     `json:"intra_institute"`
	ToUnassigned   int     `json:"to_unassigned"`
	UnpricedRoutes int     `json:"unpriced_routes"`
}

func FromDomainInsights(in domain.Insights) Insights {
	return Insights{
		TotalRoutes:    in.TotalRoutes,
		OriginalDeadKm: in.OriginalDeadKm,
		TotalDeadKm:    in.TotalDeadKm,
		TotalMinimized: in.TotalMinimized,
		TotalSwaps:     in.TotalSwaps,
		InterInstitute: in.InterInstitute,
		IntraInstitute: in.IntraInstitute,
		ToUnassigned:   in.ToUnassigned,
		UnpricedRoutes: in.UnpricedRoutes,
	}
}

type OptimizeResponse struct {
	Success           bool            `json:"success"`
	TaskID            string          `json:"task_id,omitempty"`
	Assignments       []AssignmentRow `json:"assignments,omitempty"`
	Insights          *Insights       `json:"insights,omitempty"`
	Chains            [][]string      `json:"chains,omitempty"`
	UnassignedDrivers []string        `json:"unassigned_drivers,omitempty"`
	UnassignedPickups []string        `json:"unassigned_pickups,omitempty"`
	Error             string          `json:"error,omitempty"`
}

func km(m *domain.DistanceMatrix, i, j int) *float64 {
	if m == nil || i < 0 || j < 0 || i >= m.Rows() || j >= m.Cols() {
		return nil
	}
	c := m.At(i, j)
	if !c.Reachable {
		return nil
	}
	return optional(math.Round(c.DistanceKm*100) / 100)
}

// FromOptimizeOutcome renders a successful run.
func FromOptimizeOutcome(out *services.OptimizeOutcome) OptimizeResponse {
	resp := OptimizeResponse{
		Success:           true,
		TaskID:            out.TaskID,
		Assignments:       make([]AssignmentRow, 0, len(out.Assignments)),
		UnassignedDrivers: out.UnassignedDrivers,
		UnassignedPickups: out.UnassignedPickups,
	}
	ins := FromDomainInsights(out.Insights)
	resp.Insights = &ins

	for _, a := range out.Assignments {
		d := out.Drivers[a.Driver]
		row := AssignmentRow{
			FromBus:          d.VehicleNumber,
			DriverSite:       d.Institute,
			DriverPointName:  d.Driver.Name,
			DriverLat:        d.Driver.Coords.Lat,
			DriverLon:        d.Driver.Coords.Lon,
			DriverRoute:      d.RouteNumber,
			DriverExperience: d.LicensedExperience,
		}
		if a.Driver < len(out.Original) && out.Original[a.Driver].IsAssigned() {
			row.OriginalDeadKm = km(out.Matrix, a.Driver, out.Original[a.Driver].Pickup)
		}
		if a.IsAssigned() {
			p := out.Pickups[a.Pickup]
			row.ToBus = p.VehicleNumber
			row.DeadKm = km(out.Matrix, a.Driver, a.Pickup)
			row.OptimizedDeadKm = row.DeadKm
			row.PickupSite = p.Institute
			row.PickupCategory = p.Category
			row.PickupRoute = p.RouteNumber
			row.PickupPointName = p.Pickup.Name
			row.PickupLat = optional(p.Pickup.Coords.Lat)
			row.PickupLon = optional(p.Pickup.Coords.Lon)
		}
		resp.Assignments = append(resp.Assignments, row)
	}

	for _, c := range out.Chains {
		resp.Chains = append(resp.Chains, c.Display())
	}
	return resp
}
