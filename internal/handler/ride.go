package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"carpool/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// CreateRideRequest is the HTTP request body for offering a ride.
type CreateRideRequest struct {
	StartingLocationID    string    `json:"starting_location_id"`
	DestinationLocationID string    `json:"destination_location_id"`
	StartingTime          time.Time `json:"starting_time"`
	MaxPassengers         int       `json:"max_passengers"`
	VehicleID             string    `json:"vehicle_id"`
}

// BookingOutcomeResponse reports what happened to one booking during a
// ride-wide transition.
type BookingOutcomeResponse struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// RideResultResponse is the HTTP response for ride completion and
// cancellation.
type RideResultResponse struct {
	Ride        RideResponse             `json:"ride"`
	FineApplied bool                     `json:"fine_applied"`
	Bookings    []BookingOutcomeResponse `json:"bookings"`
	Receipts    []ReceiptResponse        `json:"receipts,omitempty"`
}

// ReceiptResponse is the HTTP representation of a passenger receipt.
type ReceiptResponse struct {
	ID           string          `json:"id"`
	BookingID    string          `json:"booking_id"`
	PassengerID  string          `json:"passenger_id"`
	CarbonPoints decimal.Decimal `json:"carbon_points"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), driverID, service.CreateRideRequest{
		StartingLocationID:    req.StartingLocationID,
		DestinationLocationID: req.DestinationLocationID,
		StartingTime:          req.StartingTime,
		MaxPassengers:         req.MaxPassengers,
		VehicleID:             req.VehicleID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// ListBookings handles GET /v1/rides/:id/bookings
func (h *RideHandler) ListBookings(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	bookings, err := h.rideService.ListRideBookings(c.Request.Context(), driverID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponses(bookings))
}

// ActivateRide handles POST /v1/rides/:id/activate
func (h *RideHandler) ActivateRide(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	ride, err := h.rideService.ActivateRide(c.Request.Context(), driverID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	result, err := h.rideService.CompleteRide(c.Request.Context(), driverID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResultResponse(result))
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}

	result, err := h.rideService.CancelRide(c.Request.Context(), driverID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResultResponse(result))
}

func toRideResultResponse(result *service.RideResult) RideResultResponse {
	outcomes := make([]BookingOutcomeResponse, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		resp := BookingOutcomeResponse{
			BookingID: o.BookingID,
			UserID:    o.UserID,
			Status:    string(o.Status),
		}
		if o.Err != nil {
			resp.Error = o.Err.Error()
		}
		outcomes = append(outcomes, resp)
	}

	var receipts []ReceiptResponse
	for _, r := range result.Receipts {
		receipts = append(receipts, ReceiptResponse{
			ID:           r.ID,
			BookingID:    r.BookingID,
			PassengerID:  r.PassengerID,
			CarbonPoints: r.CarbonPoints,
		})
	}

	return RideResultResponse{
		Ride:        toRideResponse(result.Ride),
		FineApplied: result.FineApplied,
		Bookings:    outcomes,
		Receipts:    receipts,
	}
}
