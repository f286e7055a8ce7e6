// Package booking decides whether the signed-in user may book a car and
// submits the booking, keeping a local view of listing status in step with
// the server's answers.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rentwheels/internal/apierr"
	"rentwheels/internal/client"
	"rentwheels/internal/credentials"
	"rentwheels/internal/session"
)

const (
	statusAvailable = "Available"
	statusBooked    = "Booked"
	statusPending   = "pending"
)

// IdentitySource exposes the signed-in identity and its bearer token.
type IdentitySource interface {
	Current() *session.Identity
	Token() string
}

// Backend is the part of the REST API the gate talks to.
type Backend interface {
	GetCar(ctx context.Context, id string) (client.Car, error)
	CreateBooking(ctx context.Context, token string, input client.NewBooking) (client.Booking, error)
	CancelBooking(ctx context.Context, token, id string) error
}

// Request describes one booking attempt.
type Request struct {
	CarID     string
	Email     string
	StartDate *time.Time
	EndDate   *time.Time
	Comment   string
}

// Result is a confirmed booking. Applied is false when the caller's context
// ended before the local status could be updated.
type Result struct {
	Booking client.Booking
	Car     client.Car
	Applied bool
}

// Gate checks booking preconditions locally before asking the server, and
// flips a car to Booked in its cache only after the server confirms.
type Gate struct {
	identity IdentitySource
	backend  Backend
	logger   *slog.Logger

	mu       sync.Mutex
	cars     map[string]client.Car
	inFlight map[string]struct{}
	bookings map[string]string // booking id -> car id
}

// NewGate creates a Gate with an empty cache.
func NewGate(identity IdentitySource, backend Backend, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		identity: identity,
		backend:  backend,
		logger:   logger,
		cars:     make(map[string]client.Car),
		inFlight: make(map[string]struct{}),
		bookings: make(map[string]string),
	}
}

// Track records car in the local cache, replacing any previous copy.
func (g *Gate) Track(cars ...client.Car) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, car := range cars {
		g.cars[car.ID] = car
	}
}

// TrackBookings remembers which car each booking holds so Cancel can release it.
func (g *Gate) TrackBookings(bookings ...client.Booking) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range bookings {
		g.bookings[b.ID] = b.CarID
	}
}

// Car returns the cached copy of a listing.
func (g *Gate) Car(id string) (client.Car, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	car, ok := g.cars[id]
	return car, ok
}

// Forget drops a listing from the cache.
func (g *Gate) Forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cars, id)
}

// Book books carID for requesterEmail.
func (g *Gate) Book(ctx context.Context, carID, requesterEmail string) (Result, error) {
	return g.BookWith(ctx, Request{CarID: carID, Email: requesterEmail})
}

// BookWith books a car. Checks run in order and the first failure wins:
// anonymous callers get apierr.ErrUnauthenticated, a malformed email
// apierr.ErrValidation, the car's own provider apierr.ErrSelfBookingDenied and
// a car cached as Booked apierr.ErrAlreadyBooked. None of these reach the
// server. A second attempt on a car whose booking is still pending fails with
// apierr.ErrRequestInFlight. Server failures are returned unchanged and leave
// the cached status alone.
func (g *Gate) BookWith(ctx context.Context, req Request) (Result, error) {
	if g.identity.Current() == nil {
		return Result{}, apierr.ErrUnauthenticated
	}

	email := credentials.NormalizeEmail(req.Email)
	if err := credentials.ValidateEmail(email); err != nil {
		return Result{}, err
	}
	if req.CarID == "" {
		return Result{}, apierr.Validation("car id is required")
	}

	car, err := g.loadCar(ctx, req.CarID)
	if err != nil {
		return Result{}, err
	}
	if credentials.NormalizeEmail(car.ProviderEmail) == email {
		return Result{}, apierr.ErrSelfBookingDenied
	}
	if car.Status != statusAvailable {
		return Result{}, apierr.ErrAlreadyBooked
	}

	if err := g.acquire(car.ID); err != nil {
		return Result{}, err
	}
	defer g.release(car.ID)

	booking, err := g.backend.CreateBooking(ctx, g.identity.Token(), client.NewBooking{
		CarID:     car.ID,
		Email:     email,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Comment:   req.Comment,
		Status:    statusPending,
		CarName:   car.Name,
		Category:  car.Category,
		RentPrice: car.PricePerDay,
		Image:     car.Image,
		Location:  car.Location,
	})
	if err != nil {
		return Result{}, err
	}

	if ctx.Err() != nil {
		g.logger.Debug("booking confirmed after caller gave up; local status not updated", "car_id", car.ID)
		return Result{Booking: booking, Car: car}, nil
	}

	g.mu.Lock()
	car.Status = statusBooked
	g.cars[car.ID] = car
	g.bookings[booking.ID] = car.ID
	g.mu.Unlock()

	return Result{Booking: booking, Car: car, Applied: true}, nil
}

// Cancel deletes a booking. The server returns the car to Available, and the
// cached copy follows when the gate knows which car the booking held.
func (g *Gate) Cancel(ctx context.Context, bookingID string) error {
	if g.identity.Current() == nil {
		return apierr.ErrUnauthenticated
	}
	if bookingID == "" {
		return apierr.Validation("booking id is required")
	}

	if err := g.backend.CancelBooking(ctx, g.identity.Token(), bookingID); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	carID, ok := g.bookings[bookingID]
	delete(g.bookings, bookingID)
	if !ok {
		return nil
	}
	if car, cached := g.cars[carID]; cached {
		car.Status = statusAvailable
		g.cars[carID] = car
	}
	return nil
}

func (g *Gate) loadCar(ctx context.Context, id string) (client.Car, error) {
	if car, ok := g.Car(id); ok {
		return car, nil
	}

	car, err := g.backend.GetCar(ctx, id)
	if err != nil {
		return client.Car{}, fmt.Errorf("load car %s: %w", id, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cached, ok := g.cars[id]; ok {
		return cached, nil
	}
	g.cars[id] = car
	return car, nil
}

func (g *Gate) acquire(carID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[carID]; busy {
		return apierr.ErrRequestInFlight
	}
	g.inFlight[carID] = struct{}{}
	return nil
}

func (g *Gate) release(carID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, carID)
}
