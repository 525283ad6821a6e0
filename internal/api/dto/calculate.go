package dto

import (
	"deadkm-service/internal/services"
	"encoding/json"
)

type CalculateRequest struct {
	TaskID string          `json:"task_id"`
	Data   []VehicleRecord `json:"data"`
}

// CalculationRow is the input row with the priced leg appended.
type CalculationRow struct {
	VehicleRecord
	DistanceKm      *float64 `json:"Distance_km"`
	DurationMinutes *float64 `json:"Duration_minutes"`
	Error           string   `json:"Error,omitempty"`
}

// UnmarshalJSON is needed because the embedded record's decoder would
// otherwise be promoted and drop the result columns.
func (c *CalculationRow) UnmarshalJSON(b []byte) error {
	if err := c.VehicleRecord.UnmarshalJSON(b); err != nil {
		return err
	}
	var res struct {
		DistanceKm      *float64 `json:"Distance_km"`
		DurationMinutes *float64 `json:"Duration_minutes"`
		Error           string   `json:"Error"`
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return err
	}
	c.DistanceKm, c.DurationMinutes, c.Error = res.DistanceKm, res.DurationMinutes, res.Error
	return nil
}

type CalculateSummary struct {
	TotalRoutes            int `json:"total_routes"`
	SuccessfulCalculations int `json:"successful_calculations"`
	FailedCalculations     int `json:"failed_calculations"`
}

type CalculateResponse struct {
	Success bool              `json:"success"`
	TaskID  string            `json:"task_id,omitempty"`
	Results []CalculationRow  `json:"results,omitempty"`
	Summary *CalculateSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func FromCalculateOutcome(out *services.CalculateOutcome) CalculateResponse {
	resp := CalculateResponse{
		Success: true,
		TaskID:  out.TaskID,
		Results: make([]CalculationRow, 0, len(out.Results)),
		Summary: &CalculateSummary{
			TotalRoutes:            out.Total,
			SuccessfulCalculations: out.Successful,
			FailedCalculations:     out.Failed,
		},
	}
	for _, r := range out.Results {
		row := CalculationRow{VehicleRecord: FromDomainVehicle(r.Record), Error: r.Error}
		if r.OK {
			row.DistanceKm = optional(r.DistanceKm)
			row.DurationMinutes = optional(r.DurationMinutes)
		}
		resp.Results = append(resp.Results, row)
	}
	return resp
}
