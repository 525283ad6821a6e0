package dto

import (
	"deadkm-service/internal/domain"
	"encoding/json"
	"math"
)

// VehicleRecord is one roster row. Field names match the upload columns.
type VehicleRecord struct {
	VehicleNumber      Text   `json:"Vehicle Number"`
	Institute          Text   `json:"Institute"`
	Category           Text   `json:"Category"`
	RouteNumber        Text   `json:"Route Number"`
	DriverEmployeeID   Text   `json:"Driver Employee ID"`
	LicensedExperience Number `json:"Licensed Experience (years)"`
	DriverLat          Number `json:"Driver pt Latitude"`
	DriverLon          Number `json:"Driver pt Longitude"`
	DriverName         Text   `json:"Driver pt Name"`
	PickupLat          Number `json:"1st Pickup pt Latitude"`
	PickupLon          Number `json:"1st Pickup pt Longitude"`
	PickupName         Text   `json:"1st Pickup pt Name"`
}

// UnmarshalJSON leaves absent numeric columns as NaN so a missing coordinate
// fails validation instead of reading as 0.
func (v *VehicleRecord) UnmarshalJSON(b []byte) error {
	type plain VehicleRecord
	nan := Number(math.NaN())
	p := plain{
		LicensedExperience: nan,
		DriverLat:          nan,
		DriverLon:          nan,
		PickupLat:          nan,
		PickupLon:          nan,
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*v = VehicleRecord(p)
	return nil
}

func (v VehicleRecord) ToDomain() domain.VehicleRecord {
	exp := float64(v.LicensedExperience)
	if math.IsNaN(exp) {
		exp = 0
	}
	return domain.VehicleRecord{
		VehicleNumber:      v.VehicleNumber.String(),
		Institute:          v.Institute.String(),
		Category:           v.Category.String(),
		RouteNumber:        v.RouteNumber.String(),
		DriverEmployeeID:   v.DriverEmployeeID.String(),
		LicensedExperience: exp,
		Driver: domain.DriverPoint{
			Name:   v.DriverName.String(),
			Coords: domain.Coordinates{Lat: float64(v.DriverLat), Lon: float64(v.DriverLon)},
		},
		Pickup: domain.PickupPoint{
			Name:   v.PickupName.String(),
			Coords: domain.Coordinates{Lat: float64(v.PickupLat), Lon: float64(v.PickupLon)},
		},
	}
}

func FromDomainVehicle(r domain.VehicleRecord) VehicleRecord {
	return VehicleRecord{
		VehicleNumber:      Text(r.VehicleNumber),
		Institute:          Text(r.Institute),
		Category:           Text(r.Category),
		RouteNumber:        Text(r.RouteNumber),
		DriverEmployeeID:   Text(r.DriverEmployeeID),
		LicensedExperience: Number(r.LicensedExperience),
		DriverLat:          Number(r.Driver.Coords.Lat),
		DriverLon:          Number(r.Driver.Coords.Lon),
		DriverName:         Text(r.Driver.Name),
		PickupLat:          Number(r.Pickup.Coords.Lat),
		PickupLon:          Number(r.Pickup.Coords.Lon),
		PickupName:         Text(r.Pickup.Name),
	}
}

func VehiclesToDomain(in []VehicleRecord) []domain.VehicleRecord {
	out := make([]domain.VehicleRecord, len(in))
	for i, v := range in {
		out[i] = v.ToDomain()
	}
	return out
}
