package domain

// VehicleType decides the per-seat carbon cost of a ride.
type VehicleType string

const (
	VehicleTypeTwoWheeler  VehicleType = "TWO_WHEELER"
	VehicleTypeFourWheeler VehicleType = "FOUR_WHEELER"
)

// Vehicle is owned by a driver. Vehicle CRUD lives outside this service;
// only lookups are needed here.
type Vehicle struct {
	ID      string
	OwnerID string
	Type    VehicleType
}
