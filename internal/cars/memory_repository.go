package cars

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
)

// InMemoryRepository stores cars in an in-process map, ideal for local development or tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	data  map[uuid.UUID]Car
	order []uuid.UUID
}

// NewInMemoryRepository constructs a repository seeded with optional initial cars.
func NewInMemoryRepository(initial []Car) *InMemoryRepository {
	data := make(map[uuid.UUID]Car, len(initial))
	order := make([]uuid.UUID, 0, len(initial))
	for _, car := range initial {
		data[car.ID] = car
		order = append(order, car.ID)
	}
	return &InMemoryRepository{data: data, order: order}
}

// Create stores a new car.
func (r *InMemoryRepository) Create(_ context.Context, car Car) (Car, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[car.ID] = cloneCar(car)
	r.order = append(r.order, car.ID)
	return car, nil
}

// Get returns a car by ID.
func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (Car, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	car, ok := r.data[id]
	if !ok {
		return Car{}, apierr.ErrNotFound
	}
	return cloneCar(car), nil
}

// List returns stored cars matching opts in insertion order.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]Car, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Car, 0, len(r.order))
	for _, id := range r.order {
		car, ok := r.data[id]
		if !ok || !matches(car, opts) {
			continue
		}
		out = append(out, cloneCar(car))
	}
	return out, nil
}

// Update replaces an existing car.
func (r *InMemoryRepository) Update(_ context.Context, car Car) (Car, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.data[car.ID]
	if !ok {
		return Car{}, apierr.ErrNotFound
	}
	car.Status = stored.Status
	r.data[car.ID] = cloneCar(car)
	return cloneCar(car), nil
}

// Delete removes a car by ID.
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

// TransitionStatus performs a compare-and-set on the car status.
func (r *InMemoryRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to Status) (Car, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	car, ok := r.data[id]
	if !ok {
		return Car{}, apierr.ErrNotFound
	}
	if car.Status != from {
		return Car{}, ErrStatusConflict
	}
	car.Status = to
	car.UpdatedAt = time.Now().UTC()
	r.data[id] = car
	return cloneCar(car), nil
}

func matches(car Car, opts ListOptions) bool {
	if opts.Category != nil && car.Category != *opts.Category {
		return false
	}
	if opts.Status != nil && car.Status != *opts.Status {
		return false
	}
	if opts.ProviderEmail != nil && car.ProviderEmail != *opts.ProviderEmail {
		return false
	}
	if opts.Query != nil {
		needle := strings.ToLower(*opts.Query)
		haystack := strings.ToLower(car.Name + " " + car.Model + " " + car.Location + " " + car.Description)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func cloneCar(car Car) Car {
	car.Features = slices.Clone(car.Features)
	return car
}
