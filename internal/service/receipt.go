package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carpool/internal/domain"
)

// Receipt summarises what a passenger paid for a completed ride.
type Receipt struct {
	ID                    string
	RideID                string
	BookingID             string
	PassengerID           string
	DriverID              string
	StartingLocationID    string
	DestinationLocationID string
	CarbonPoints          decimal.Decimal
	StartingTime          time.Time
	CompletedAt           time.Time
	CreatedAt             time.Time
}

// ReceiptService issues receipts for settled bookings.
type ReceiptService struct {
	notificationService *NotificationService
	now                 func() time.Time
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(notificationService *NotificationService) *ReceiptService {
	return &ReceiptService{
		notificationService: notificationService,
		now:                 time.Now,
	}
}

// IssueReceipts creates one receipt per booking in settled and sends each to
// its passenger. Bookings that are not COMPLETED are skipped.
func (s *ReceiptService) IssueReceipts(ctx context.Context, ride *domain.Ride, settled []*domain.RideBooking) []*Receipt {
	receipts := make([]*Receipt, 0, len(settled))
	for _, b := range settled {
		if b.Status != domain.BookingStatusCompleted {
			continue
		}

		receipt := &Receipt{
			ID:                    uuid.New().String(),
			RideID:                ride.ID,
			BookingID:             b.ID,
			PassengerID:           b.UserID,
			DriverID:              ride.DriverID,
			StartingLocationID:    ride.StartingLocationID,
			DestinationLocationID: ride.DestinationLocationID,
			CarbonPoints:          b.CarbonCost,
			StartingTime:          ride.StartingTime,
			CompletedAt:           ride.CompletedAt,
			CreatedAt:             s.now(),
		}
		receipts = append(receipts, receipt)

		s.notificationService.NotifyReceiptReady(ctx, receipt, FormatReceipt(receipt))
	}
	return receipts
}

// DriverEarnings sums the points paid out across receipts.
func DriverEarnings(receipts []*Receipt) decimal.Decimal {
	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(r.CarbonPoints)
	}
	return total
}

// FormatReceipt renders a receipt as plain text for chat or email delivery.
func FormatReceipt(r *Receipt) string {
	var b strings.Builder
	line := strings.Repeat("=", 37)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "           CARPOOL RECEIPT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Receipt ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Ride ID:    %s\n", r.RideID)
	fmt.Fprintf(&b, "Date:       %s\n", r.CreatedAt.Format("Jan 02, 2006 3:04 PM"))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "From:       %s\n", r.StartingLocationID)
	fmt.Fprintf(&b, "To:         %s\n", r.DestinationLocationID)
	fmt.Fprintf(&b, "Departure:  %s\n", r.StartingTime.Format("Jan 02, 2006 3:04 PM"))
	if !r.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Arrival:    %s\n", r.CompletedAt.Format("Jan 02, 2006 3:04 PM"))
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Carbon points: %s\n", r.CarbonPoints.StringFixed(2))
	fmt.Fprintln(&b, line)

	return b.String()
}
