package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// BookingHandler handles HTTP requests for ride bookings.
type BookingHandler struct {
	bookingService *service.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookingService *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

type bookingAction func(ctx context.Context, userID, bookingID string) (*domain.RideBooking, error)

// CreateBooking handles POST /v1/rides/:id/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toBookingResponse(booking))
}

// ListBookings handles GET /v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	bookings, err := h.bookingService.ListUserBookings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponses(bookings))
}

// GetBooking handles GET /v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.GetBooking)
}

// ActivateBooking handles POST /v1/bookings/:id/activate
func (h *BookingHandler) ActivateBooking(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.ActivateBooking)
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.CancelBookingByUser)
}

// DriverCancelBooking handles POST /v1/bookings/:id/driver-cancel
func (h *BookingHandler) DriverCancelBooking(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.CancelBookingByDriver)
}

// ReportNoShow handles POST /v1/bookings/:id/no-show
func (h *BookingHandler) ReportNoShow(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.ReportNoShow)
}

// DenyBooking handles POST /v1/bookings/:id/deny
func (h *BookingHandler) DenyBooking(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.DenyBooking)
}

// CompleteBooking handles POST /v1/bookings/:id/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.run(c, http.StatusOK, h.bookingService.CompleteBooking)
}

func (h *BookingHandler) run(c *gin.Context, code int, action bookingAction) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	booking, err := action(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, code, toBookingResponse(booking))
}
