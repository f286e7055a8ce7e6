package bookings

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
)

// InMemoryRepository stores bookings in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	data  map[uuid.UUID]Booking
	order []uuid.UUID
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{data: make(map[uuid.UUID]Booking)}
}

func (r *InMemoryRepository) Create(_ context.Context, booking Booking) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[booking.ID] = booking
	r.order = append(r.order, booking.ID)
	return booking, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.data[id]
	if !ok {
		return Booking{}, apierr.ErrNotFound
	}
	return booking, nil
}

func (r *InMemoryRepository) ListByEmail(_ context.Context, email string) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Booking{}
	for i := len(r.order) - 1; i >= 0; i-- {
		if booking := r.data[r.order[i]]; booking.Email == email {
			out = append(out, booking)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ExistsForCar(_ context.Context, carID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, booking := range r.data {
		if booking.CarID == carID {
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryRepository) List(_ context.Context, offset, limit int) ([]Booking, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.order)
	out := []Booking{}
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.data[r.order[i]])
	}
	return out, total, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return apierr.ErrNotFound
	}
	delete(r.data, id)
	r.order = slices.DeleteFunc(r.order, func(existing uuid.UUID) bool { return existing == id })
	return nil
}
