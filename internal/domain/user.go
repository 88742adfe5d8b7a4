package domain

import "time"

// User represents a carpool member. Any user can offer rides or book seats.
type User struct {
	ID        string
	Name      string
	Phone     string
	CreatedAt time.Time
}
