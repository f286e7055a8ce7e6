package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/cars"
)

// StatusPending is the only status a booking carries under the two-state car model.
const StatusPending = "pending"

// Booking is a reservation of a car. Car fields are denormalized so the record
// stays readable after the listing changes or is removed.
type Booking struct {
	ID            uuid.UUID     `json:"_id" db:"id"`
	CarID         uuid.UUID     `json:"carId" db:"car_id"`
	Email         string        `json:"email" db:"email"`
	CarName       string        `json:"carName" db:"car_name"`
	Category      cars.Category `json:"category" db:"category"`
	RentPrice     float64       `json:"rentPrice" db:"rent_price"`
	Image         string        `json:"image" db:"image"`
	Location      string        `json:"location" db:"location"`
	ProviderEmail string        `json:"providerEmail" db:"provider_email"`
	StartDate     *time.Time    `json:"startingDate,omitempty" db:"start_date"`
	EndDate       *time.Time    `json:"endDate,omitempty" db:"end_date"`
	Comment       string        `json:"comment" db:"comment"`
	Status        string        `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
}

// CreateBookingInput captures a booking request. Car details are filled in by
// the service from the stored listing.
type CreateBookingInput struct {
	CarID     uuid.UUID
	Email     string
	StartDate *time.Time
	EndDate   *time.Time
	Comment   string
}

// Requester identifies the caller of a booking operation.
type Requester struct {
	Email string
	Admin bool
}

// Page is one page of bookings with the overall total.
type Page struct {
	Bookings      []Booking `json:"bookings"`
	Page          int       `json:"page"`
	Limit         int       `json:"limit"`
	TotalPages    int       `json:"totalPages"`
	TotalBookings int       `json:"totalBookings"`
}

// Repository defines persistence operations for bookings.
type Repository interface {
	Create(ctx context.Context, booking Booking) (Booking, error)
	Get(ctx context.Context, id uuid.UUID) (Booking, error)
	ListByEmail(ctx context.Context, email string) ([]Booking, error)
	// List returns bookings newest first, skipping offset rows, plus the total count.
	List(ctx context.Context, offset, limit int) ([]Booking, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ExistsForCar(ctx context.Context, carID uuid.UUID) (bool, error)
}

// CarStore is the subset of the car service used to enforce availability.
type CarStore interface {
	Get(ctx context.Context, id uuid.UUID) (cars.Car, error)
	MarkBooked(ctx context.Context, id uuid.UUID) (cars.Car, error)
	MarkAvailable(ctx context.Context, id uuid.UUID) (cars.Car, error)
}
