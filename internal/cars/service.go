package cars

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"rentwheels/internal/apierr"
)

// Cache is the subset of a key/value cache used for read-through car lookups.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// BookingLookup reports whether a car still has a booking on record.
type BookingLookup interface {
	ExistsForCar(ctx context.Context, carID uuid.UUID) (bool, error)
}

// Service orchestrates validation and persistence for car listings.
type Service struct {
	repo     Repository
	bookings BookingLookup
	cache    Cache
	cacheTTL time.Duration
	writes   atomic.Uint64
	validate *validator.Validate
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCache enables read-through caching of Get.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBookingLookup lets Update release a Booked car once no booking
// references it. Without a lookup, Booked cars are released only by
// cancelling their booking.
func WithBookingLookup(lookup BookingLookup) Option {
	return func(s *Service) {
		s.bookings = lookup
	}
}

// NewService wires a Service with the provided repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cacheTTL: 5 * time.Minute,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new listing. New listings are always Available.
func (s *Service) Create(ctx context.Context, input CreateCarInput) (Car, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Model = strings.TrimSpace(input.Model)
	input.Location = strings.TrimSpace(input.Location)
	input.Image = strings.TrimSpace(input.Image)
	input.Description = strings.TrimSpace(input.Description)
	input.ProviderEmail = strings.ToLower(strings.TrimSpace(input.ProviderEmail))

	if err := s.validate.Struct(input); err != nil {
		return Car{}, translateValidation(err)
	}
	if !input.Category.Valid() {
		return Car{}, apierr.Validation("unknown category %q", input.Category)
	}

	providerName := strings.TrimSpace(input.ProviderName)
	if providerName == "" {
		providerName, _, _ = strings.Cut(input.ProviderEmail, "@")
	}

	now := time.Now().UTC()
	car := Car{
		ID:            uuid.New(),
		Name:          input.Name,
		Model:         input.Model,
		Category:      input.Category,
		PricePerDay:   input.PricePerDay,
		Location:      input.Location,
		Image:         input.Image,
		Description:   input.Description,
		Features:      normalizeFeatures(input.Features),
		Status:        StatusAvailable,
		ProviderName:  providerName,
		ProviderEmail: input.ProviderEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.Create(ctx, car)
	if err != nil {
		return Car{}, fmt.Errorf("create car: %w", err)
	}
	return created, nil
}

// Get retrieves a car by ID, consulting the cache first when configured.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Car, error) {
	if s.cache != nil {
		var cached Car
		hit, err := s.cache.Get(ctx, cacheKey(id), &cached)
		if err != nil {
			s.logger.Warn("car cache read failed", "car_id", id, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	seen := s.writes.Load()
	car, err := s.repo.Get(ctx, id)
	if err != nil {
		return Car{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(id), car, s.cacheTTL); err != nil {
			s.logger.Warn("car cache write failed", "car_id", id, "error", err)
		}
		// A write that landed after our read may have been cleared before
		// the Set above; drop the entry so the stale copy is not served.
		if s.writes.Load() != seen {
			s.invalidate(ctx, id)
		}
	}
	return car, nil
}

// List returns listings matching opts in the requested order.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Car, error) {
	if opts.Category != nil && !opts.Category.Valid() {
		return nil, apierr.Validation("unknown category %q", *opts.Category)
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return nil, apierr.Validation("unknown status %q", *opts.Status)
	}
	if opts.Query != nil && strings.TrimSpace(*opts.Query) == "" {
		opts.Query = nil
	}

	cars, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	switch opts.Sort {
	case SortPriceAsc:
		slices.SortStableFunc(cars, func(a, b Car) int { return cmp.Compare(a.PricePerDay, b.PricePerDay) })
	case SortPriceDesc:
		slices.SortStableFunc(cars, func(a, b Car) int { return cmp.Compare(b.PricePerDay, a.PricePerDay) })
	case SortNewest, "":
		slices.SortStableFunc(cars, func(a, b Car) int { return b.CreatedAt.Compare(a.CreatedAt) })
	default:
		return nil, apierr.Validation("unknown sort %q", opts.Sort)
	}

	if opts.Limit != nil && *opts.Limit >= 0 && len(cars) > *opts.Limit {
		cars = cars[:*opts.Limit]
	}
	return cars, nil
}

// ListByProvider returns the listings published by email.
func (s *Service) ListByProvider(ctx context.Context, email string) ([]Car, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apierr.Validation("providerEmail is required")
	}
	return s.List(ctx, ListOptions{ProviderEmail: &email})
}

// Update applies modifications to a listing. Only its provider or an admin may edit it.
// Status changes go through TransitionStatus so a concurrent booking is never
// overwritten, and a Booked car is only released when no booking references it.
func (s *Service) Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateCarInput) (Car, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Car{}, err
	}
	if !actor.CanManage(existing) {
		return Car{}, apierr.ErrAuthorizationDenied
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Car{}, apierr.Validation("name is required")
		}
		existing.Name = name
	}
	if input.Model != nil {
		existing.Model = strings.TrimSpace(*input.Model)
	}
	if input.Category != nil {
		if !input.Category.Valid() {
			return Car{}, apierr.Validation("unknown category %q", *input.Category)
		}
		existing.Category = *input.Category
	}
	if input.PricePerDay != nil {
		if *input.PricePerDay <= 0 {
			return Car{}, apierr.Validation("pricePerDay must be positive")
		}
		existing.PricePerDay = *input.PricePerDay
	}
	if input.Location != nil {
		existing.Location = strings.TrimSpace(*input.Location)
	}
	if input.Image != nil {
		image := strings.TrimSpace(*input.Image)
		if err := s.validate.Var(image, "required,url"); err != nil {
			return Car{}, apierr.Validation("image must be a valid URL")
		}
		existing.Image = image
	}
	if input.Description != nil {
		existing.Description = strings.TrimSpace(*input.Description)
	}
	if input.Features != nil {
		existing.Features = normalizeFeatures(*input.Features)
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return Car{}, apierr.Validation("unknown status %q", *input.Status)
		}
		if *input.Status != existing.Status {
			if err := s.changeStatus(ctx, id, existing.Status, *input.Status); err != nil {
				return Car{}, err
			}
		}
	}

	existing.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return Car{}, fmt.Errorf("update car: %w", err)
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// Delete removes a listing. Only its provider or an admin may delete it.
func (s *Service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(existing) {
		return apierr.ErrAuthorizationDenied
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// MarkBooked flips the car from Available to Booked. It fails with
// apierr.ErrAlreadyBooked when the car is not Available.
func (s *Service) MarkBooked(ctx context.Context, id uuid.UUID) (Car, error) {
	car, err := s.repo.TransitionStatus(ctx, id, StatusAvailable, StatusBooked)
	if errors.Is(err, ErrStatusConflict) {
		return Car{}, fmt.Errorf("car %s: %w", id, apierr.ErrAlreadyBooked)
	}
	if err != nil {
		return Car{}, err
	}
	s.invalidate(ctx, id)
	return car, nil
}

// MarkAvailable returns the car to Available. A car that is already Available
// is left untouched.
func (s *Service) MarkAvailable(ctx context.Context, id uuid.UUID) (Car, error) {
	car, err := s.repo.TransitionStatus(ctx, id, StatusBooked, StatusAvailable)
	if errors.Is(err, ErrStatusConflict) {
		return s.repo.Get(ctx, id)
	}
	if err != nil {
		return Car{}, err
	}
	s.invalidate(ctx, id)
	return car, nil
}

func (s *Service) changeStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	if from == StatusBooked && to == StatusAvailable {
		if s.bookings == nil {
			return fmt.Errorf("cancel the booking to release car %s: %w", id, apierr.ErrAlreadyBooked)
		}
		booked, err := s.bookings.ExistsForCar(ctx, id)
		if err != nil {
			return fmt.Errorf("check bookings for car %s: %w", id, err)
		}
		if booked {
			return fmt.Errorf("cancel the booking to release car %s: %w", id, apierr.ErrAlreadyBooked)
		}
	}

	_, err := s.repo.TransitionStatus(ctx, id, from, to)
	if errors.Is(err, ErrStatusConflict) {
		if to == StatusAvailable {
			// Released concurrently.
			return nil
		}
		return fmt.Errorf("car %s: %w", id, apierr.ErrAlreadyBooked)
	}
	if err != nil {
		return fmt.Errorf("change car status: %w", err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	s.writes.Add(1)
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheKey(id)); err != nil {
		s.logger.Warn("car cache invalidation failed", "car_id", id, "error", err)
	}
}

func cacheKey(id uuid.UUID) string {
	return "car:" + id.String()
}

func normalizeFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if trimmed := strings.TrimSpace(f); trimmed != "" && !slices.Contains(out, trimmed) {
			out = append(out, trimmed)
		}
	}
	return out
}

func translateValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apierr.Validation("invalid car: %v", err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return apierr.Validation("%s is required", jsonName(fe.Field()))
	case "gt":
		return apierr.Validation("%s must be positive", jsonName(fe.Field()))
	case "url":
		return apierr.Validation("%s must be a valid URL", jsonName(fe.Field()))
	case "email":
		return apierr.Validation("%s must be a valid email", jsonName(fe.Field()))
	default:
		return apierr.Validation("%s is invalid", jsonName(fe.Field()))
	}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
