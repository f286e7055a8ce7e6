package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
	"rentwheels/internal/credentials"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Service enforces the booking rules on the server side.
type Service struct {
	repo   Repository
	cars   CarStore
	logger *slog.Logger
}

// NewService wires a Service.
func NewService(repo Repository, cars CarStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cars: cars, logger: logger}
}

// Create books a car for input.Email. The checks run in order: the requester
// may only book for themselves (admins excepted), the car must exist, the
// booker must not be the provider, and the car must still be Available. The
// car is flipped to Booked before the booking row is written and flipped back
// if the write fails.
func (s *Service) Create(ctx context.Context, requester Requester, input CreateBookingInput) (Booking, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		email = requester.Email
	}
	if err := credentials.ValidateEmail(email); err != nil {
		return Booking{}, err
	}
	if email != requester.Email && !requester.Admin {
		return Booking{}, apierr.ErrAuthorizationDenied
	}
	if input.CarID == uuid.Nil {
		return Booking{}, apierr.Validation("carId is required")
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return Booking{}, apierr.Validation("endDate must not be before startingDate")
	}

	car, err := s.cars.Get(ctx, input.CarID)
	if err != nil {
		return Booking{}, err
	}
	if strings.EqualFold(car.ProviderEmail, email) {
		return Booking{}, apierr.ErrSelfBookingDenied
	}

	if _, err := s.cars.MarkBooked(ctx, car.ID); err != nil {
		return Booking{}, err
	}

	booking := Booking{
		ID:            uuid.New(),
		CarID:         car.ID,
		Email:         email,
		CarName:       car.Name,
		Category:      car.Category,
		RentPrice:     car.PricePerDay,
		Image:         car.Image,
		Location:      car.Location,
		ProviderEmail: car.ProviderEmail,
		StartDate:     utc(input.StartDate),
		EndDate:       utc(input.EndDate),
		Comment:       strings.TrimSpace(input.Comment),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.Create(ctx, booking)
	if err != nil {
		if _, revertErr := s.cars.MarkAvailable(context.WithoutCancel(ctx), car.ID); revertErr != nil {
			s.logger.Error("failed to release car after booking insert failure", "car_id", car.ID, "error", revertErr)
		}
		return Booking{}, fmt.Errorf("create booking: %w", err)
	}

	s.logger.Info("car booked", "booking_id", created.ID, "car_id", car.ID, "email", email)
	return created, nil
}

// ListByEmail returns the bookings made by email, newest first. Callers may
// only read their own bookings unless they are admins.
func (s *Service) ListByEmail(ctx context.Context, requester Requester, email string) ([]Booking, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = requester.Email
	}
	if email != requester.Email && !requester.Admin {
		return nil, apierr.ErrAuthorizationDenied
	}
	return s.repo.ListByEmail(ctx, email)
}

// ListAll returns one page of all bookings. Page numbers start at 1.
func (s *Service) ListAll(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Bookings:      items,
		Page:          page,
		Limit:         limit,
		TotalPages:    (total + limit - 1) / limit,
		TotalBookings: total,
	}, nil
}

// Cancel removes a booking and returns its car to Available. Only the booker
// or an admin may cancel. When the car cannot be released the booking is put
// back so the cancellation can be retried.
func (s *Service) Cancel(ctx context.Context, requester Requester, id uuid.UUID) error {
	booking, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if booking.Email != requester.Email && !requester.Admin {
		return apierr.ErrAuthorizationDenied
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if _, err := s.cars.MarkAvailable(ctx, booking.CarID); err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return nil
		}
		if _, restoreErr := s.repo.Create(context.WithoutCancel(ctx), booking); restoreErr != nil {
			s.logger.Error("failed to restore booking after car release failure", "booking_id", booking.ID, "car_id", booking.CarID, "error", restoreErr)
		}
		return fmt.Errorf("release car %s: %w", booking.CarID, err)
	}
	s.logger.Info("booking cancelled", "booking_id", booking.ID, "car_id", booking.CarID)
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
