package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
	"carpool/internal/middleware"
	"carpool/internal/service"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		if txn := newrelic.FromContext(c.Request.Context()); txn != nil {
			txn.NoticeError(err)
		}
		_ = c.Error(err)
		c.JSON(code, Response{Success: false, Message: "internal server error"})
		return
	}
	c.JSON(code, Response{Success: false, Message: err.Error()})
}

// respondBadRequest reports a malformed request body or parameter.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: message})
}

// respondJSON sends a successful response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, Response{Success: true, Data: data})
}

// callerID returns the authenticated user, or fails the request.
func callerID(c *gin.Context) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		respondError(c, service.ErrUnauthenticated)
		return "", false
	}
	return userID, true
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrDuplicateBooking),
		errors.Is(err, service.ErrConflictingActiveRide):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WalletResponse is the HTTP representation of a wallet.
type WalletResponse struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	SpendableBalance decimal.Decimal `json:"spendable_balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
	UpdatedAt        string          `json:"updated_at"`
}

func toWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:               w.ID,
		UserID:           w.UserID,
		SpendableBalance: w.SpendableBalance,
		ReservedBalance:  w.ReservedBalance,
		UpdatedAt:        formatTime(w.UpdatedAt),
	}
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID                    string          `json:"id"`
	DriverID              string          `json:"driver_id"`
	StartingLocationID    string          `json:"starting_location_id"`
	DestinationLocationID string          `json:"destination_location_id"`
	StartingTime          string          `json:"starting_time"`
	MaxPassengers         int             `json:"max_passengers"`
	VehicleID             string          `json:"vehicle_id"`
	CarbonCost            decimal.Decimal `json:"carbon_cost"`
	Status                string          `json:"status"`
	CreatedAt             string          `json:"created_at"`
	CancelledAt           string          `json:"cancelled_at,omitempty"`
	CompletedAt           string          `json:"completed_at,omitempty"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:                    r.ID,
		DriverID:              r.DriverID,
		StartingLocationID:    r.StartingLocationID,
		DestinationLocationID: r.DestinationLocationID,
		StartingTime:          formatTime(r.StartingTime),
		MaxPassengers:         r.MaxPassengers,
		VehicleID:             r.VehicleID,
		CarbonCost:            r.CarbonCost,
		Status:                string(r.Status),
		CreatedAt:             formatTime(r.CreatedAt),
		CancelledAt:           formatTime(r.CancelledAt),
		CompletedAt:           formatTime(r.CompletedAt),
	}
}

// BookingResponse is the HTTP representation of a booking.
type BookingResponse struct {
	ID         string          `json:"id"`
	RideID     string          `json:"ride_id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	CarbonCost decimal.Decimal `json:"carbon_cost"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func toBookingResponse(b *domain.RideBooking) BookingResponse {
	return BookingResponse{
		ID:         b.ID,
		RideID:     b.RideID,
		UserID:     b.UserID,
		Status:     string(b.Status),
		CarbonCost: b.CarbonCost,
		CreatedAt:  formatTime(b.CreatedAt),
		UpdatedAt:  formatTime(b.UpdatedAt),
	}
}

func toBookingResponses(bookings []*domain.RideBooking) []BookingResponse {
	response := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		response = append(response, toBookingResponse(b))
	}
	return response
}
