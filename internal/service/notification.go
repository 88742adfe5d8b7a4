package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"carpool/internal/domain"
	"carpool/internal/logger"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationBookingConfirmed NotificationType = "BOOKING_CONFIRMED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
	NotificationBookingDenied    NotificationType = "BOOKING_DENIED"
	NotificationRiderCheckedIn   NotificationType = "RIDER_CHECKED_IN"
	NotificationRideStarted      NotificationType = "RIDE_STARTED"
	NotificationRideCompleted    NotificationType = "RIDE_COMPLETED"
	NotificationRideCancelled    NotificationType = "RIDE_CANCELLED"
	NotificationFineCharged      NotificationType = "FINE_CHARGED"
	NotificationReceiptReady     NotificationType = "RECEIPT_READY"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]any
	CreatedAt   time.Time
}

// NotificationService records user-facing events. Delivery (push tokens,
// chat) is handled by another system that consumes the log stream.
type NotificationService struct{}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotifyBookingConfirmed tells the driver a seat was booked.
func (s *NotificationService) NotifyBookingConfirmed(ctx context.Context, ride *domain.Ride, booking *domain.RideBooking) {
	s.send(ctx, Notification{
		Type:        NotificationBookingConfirmed,
		RecipientID: ride.DriverID,
		Title:       "New Booking",
		Message:     fmt.Sprintf("A passenger booked a seat for %s points", booking.CarbonCost),
		Data: map[string]any{
			"ride_id":    ride.ID,
			"booking_id": booking.ID,
			"user_id":    booking.UserID,
		},
	})
}

// NotifyRiderCheckedIn tells the driver a passenger is on board.
func (s *NotificationService) NotifyRiderCheckedIn(ctx context.Context, ride *domain.Ride, booking *domain.RideBooking) {
	s.send(ctx, Notification{
		Type:        NotificationRiderCheckedIn,
		RecipientID: ride.DriverID,
		Title:       "Passenger Checked In",
		Message:     "A passenger confirmed boarding",
		Data: map[string]any{
			"ride_id":    ride.ID,
			"booking_id": booking.ID,
		},
	})
}

// NotifyBookingCancelled tells the other party a booking ended early.
func (s *NotificationService) NotifyBookingCancelled(ctx context.Context, ride *domain.Ride, booking *domain.RideBooking) {
	recipient := booking.UserID
	if booking.Status == domain.BookingStatusCancelledUser {
		recipient = ride.DriverID
	}

	notificationType := NotificationBookingCancelled
	title := "Booking Cancelled"
	if booking.Status == domain.BookingStatusDenied {
		notificationType = NotificationBookingDenied
		title = "Booking Denied"
	}

	s.send(ctx, Notification{
		Type:        notificationType,
		RecipientID: recipient,
		Title:       title,
		Message:     fmt.Sprintf("Booking %s is now %s", booking.ID, booking.Status),
		Data: map[string]any{
			"ride_id":    ride.ID,
			"booking_id": booking.ID,
			"status":     booking.Status,
		},
	})
}

// NotifyRideStatus tells every passenger about a ride-level transition.
func (s *NotificationService) NotifyRideStatus(ctx context.Context, ride *domain.Ride, passengerIDs []string) {
	var notificationType NotificationType
	var title string
	switch ride.Status {
	case domain.RideStatusActive:
		notificationType, title = NotificationRideStarted, "Ride Started"
	case domain.RideStatusCompleted:
		notificationType, title = NotificationRideCompleted, "Ride Completed"
	case domain.RideStatusCancelled:
		notificationType, title = NotificationRideCancelled, "Ride Cancelled"
	default:
		return
	}

	for _, passengerID := range passengerIDs {
		s.send(ctx, Notification{
			Type:        notificationType,
			RecipientID: passengerID,
			Title:       title,
			Message:     fmt.Sprintf("Ride %s is now %s", ride.ID, ride.Status),
			Data: map[string]any{
				"ride_id": ride.ID,
			},
		})
	}
}

// NotifyFineCharged tells a user they were fined.
func (s *NotificationService) NotifyFineCharged(ctx context.Context, userID, rideID string, amount decimal.Decimal) {
	s.send(ctx, Notification{
		Type:        NotificationFineCharged,
		RecipientID: userID,
		Title:       "Fine Charged",
		Message:     fmt.Sprintf("%s points were deducted from your wallet", amount),
		Data: map[string]any{
			"ride_id": rideID,
			"amount":  amount.String(),
		},
	})
}

// NotifyReceiptReady sends a passenger their ride receipt.
func (s *NotificationService) NotifyReceiptReady(ctx context.Context, receipt *Receipt, body string) {
	s.send(ctx, Notification{
		Type:        NotificationReceiptReady,
		RecipientID: receipt.PassengerID,
		Title:       "Your Receipt",
		Message:     body,
		Data: map[string]any{
			"receipt_id": receipt.ID,
			"ride_id":    receipt.RideID,
			"booking_id": receipt.BookingID,
			"points":     receipt.CarbonPoints.String(),
		},
	})
}

func (s *NotificationService) send(ctx context.Context, n Notification) {
	if s == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	logger.Log.Infow("notification",
		"type", n.Type,
		"recipient_id", n.RecipientID,
		"title", n.Title,
		"message", n.Message,
		"data", n.Data,
	)
}
