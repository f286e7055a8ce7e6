package cars

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/apierr"
)

func validInput() CreateCarInput {
	return CreateCarInput{
		Name:          "Toyota Corolla",
		Model:         "2022",
		Category:      CategorySedan,
		PricePerDay:   45,
		Location:      "Dhaka",
		Image:         "https://images.example.com/corolla.jpg",
		Description:   "Reliable city car",
		Features:      []string{"AC", " GPS ", "AC", ""},
		ProviderName:  "Rahim",
		ProviderEmail: "Owner@Example.com",
	}
}

func TestServiceCreateValidatesInput(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))

	cases := map[string]func(*CreateCarInput){
		"missing name":     func(in *CreateCarInput) { in.Name = "  " },
		"zero price":       func(in *CreateCarInput) { in.PricePerDay = 0 },
		"bad image":        func(in *CreateCarInput) { in.Image = "not a url" },
		"unknown category": func(in *CreateCarInput) { in.Category = "Spaceship" },
		"missing provider": func(in *CreateCarInput) { in.ProviderEmail = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := validInput()
			mutate(&input)
			_, err := svc.Create(context.Background(), input)
			if !errors.Is(err, apierr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestServiceCreatePersistsAvailableCar(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))

	car, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if car.ID == uuid.Nil {
		t.Fatal("expected id to be set")
	}
	if car.Status != StatusAvailable {
		t.Fatalf("expected Available, got %s", car.Status)
	}
	if car.ProviderEmail != "owner@example.com" {
		t.Fatalf("expected normalized provider email, got %q", car.ProviderEmail)
	}
	if len(car.Features) != 2 || car.Features[0] != "AC" || car.Features[1] != "GPS" {
		t.Fatalf("unexpected features %v", car.Features)
	}
}

func TestServiceListFiltersAndSorts(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := NewInMemoryRepository([]Car{
		{ID: uuid.New(), Name: "Corolla", Category: CategorySedan, PricePerDay: 45, Status: StatusAvailable, Location: "Dhaka", CreatedAt: base},
		{ID: uuid.New(), Name: "Model 3", Category: CategoryElectric, PricePerDay: 90, Status: StatusBooked, Location: "Chittagong", CreatedAt: base.Add(time.Hour)},
		{ID: uuid.New(), Name: "Civic", Category: CategorySedan, PricePerDay: 40, Status: StatusAvailable, Location: "Sylhet", CreatedAt: base.Add(2 * time.Hour)},
	})
	svc := NewService(repo)
	ctx := context.Background()

	all, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Civic" {
		t.Fatalf("expected newest first, got %v", names(all))
	}

	sedan := CategorySedan
	cheapest, err := svc.List(ctx, ListOptions{Category: &sedan, Sort: SortPriceAsc})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cheapest) != 2 || cheapest[0].Name != "Civic" || cheapest[1].Name != "Corolla" {
		t.Fatalf("unexpected sedan order %v", names(cheapest))
	}

	booked := StatusBooked
	onlyBooked, err := svc.List(ctx, ListOptions{Status: &booked})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(onlyBooked) != 1 || onlyBooked[0].Name != "Model 3" {
		t.Fatalf("unexpected booked cars %v", names(onlyBooked))
	}

	query := "chitta"
	found, err := svc.List(ctx, ListOptions{Query: &query})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(found) != 1 || found[0].Name != "Model 3" {
		t.Fatalf("unexpected search result %v", names(found))
	}

	limit := 1
	limited, err := svc.List(ctx, ListOptions{Sort: SortPriceDesc, Limit: &limit})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Name != "Model 3" {
		t.Fatalf("unexpected limited result %v", names(limited))
	}

	if _, err := svc.List(ctx, ListOptions{Sort: "random"}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for unknown sort, got %v", err)
	}
}

func TestServiceUpdateRequiresProviderOrAdmin(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	price := 60.0
	_, err = svc.Update(ctx, Actor{Email: "stranger@example.com"}, car.ID, UpdateCarInput{PricePerDay: &price})
	if !errors.Is(err, apierr.ErrAuthorizationDenied) {
		t.Fatalf("expected authorization denied, got %v", err)
	}

	updated, err := svc.Update(ctx, Actor{Email: "owner@example.com"}, car.ID, UpdateCarInput{PricePerDay: &price})
	if err != nil {
		t.Fatalf("provider update failed: %v", err)
	}
	if updated.PricePerDay != 60 {
		t.Fatalf("expected price 60, got %v", updated.PricePerDay)
	}

	booked := StatusBooked
	updated, err = svc.Update(ctx, Actor{Email: "admin@example.com", Admin: true}, car.ID, UpdateCarInput{Status: &booked})
	if err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
	if updated.Status != StatusBooked {
		t.Fatalf("expected Booked, got %s", updated.Status)
	}

	zero := 0.0
	if _, err := svc.Update(ctx, Actor{Admin: true}, car.ID, UpdateCarInput{PricePerDay: &zero}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceDelete(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Delete(ctx, Actor{Email: "other@example.com"}, car.ID); !errors.Is(err, apierr.ErrAuthorizationDenied) {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	if err := svc.Delete(ctx, Actor{Email: "owner@example.com"}, car.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, car.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestServiceMarkBookedIsConditional(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	booked, err := svc.MarkBooked(ctx, car.ID)
	if err != nil {
		t.Fatalf("mark booked failed: %v", err)
	}
	if booked.Status != StatusBooked {
		t.Fatalf("expected Booked, got %s", booked.Status)
	}

	if _, err := svc.MarkBooked(ctx, car.ID); !errors.Is(err, apierr.ErrAlreadyBooked) {
		t.Fatalf("expected already booked, got %v", err)
	}

	available, err := svc.MarkAvailable(ctx, car.ID)
	if err != nil {
		t.Fatalf("mark available failed: %v", err)
	}
	if available.Status != StatusAvailable {
		t.Fatalf("expected Available, got %s", available.Status)
	}

	again, err := svc.MarkAvailable(ctx, car.ID)
	if err != nil {
		t.Fatalf("repeat mark available failed: %v", err)
	}
	if again.Status != StatusAvailable {
		t.Fatalf("expected Available, got %s", again.Status)
	}

	if _, err := svc.MarkBooked(ctx, uuid.New()); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceMarkBookedConcurrent(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.MarkBooked(ctx, car.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful booking, got %d", successes)
	}
}

func TestServiceGetUsesCacheAndInvalidatesOnWrite(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	cache := newMapCache()
	svc := NewService(repo, WithCache(cache, time.Minute))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Get(ctx, car.ID); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !cache.has(cacheKey(car.ID)) {
		t.Fatal("expected car to be cached after first read")
	}

	if _, err := svc.MarkBooked(ctx, car.ID); err != nil {
		t.Fatalf("mark booked failed: %v", err)
	}
	if cache.has(cacheKey(car.ID)) {
		t.Fatal("expected cache entry to be invalidated after status change")
	}

	got, err := svc.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusBooked {
		t.Fatalf("expected fresh status Booked, got %s", got.Status)
	}
}

func TestServiceUpdateKeepsConcurrentBooking(t *testing.T) {
	repo := &bookingDuringUpdateRepository{InMemoryRepository: NewInMemoryRepository(nil)}
	svc := NewService(repo)
	repo.svc = svc
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	price := 80.0
	updated, err := svc.Update(ctx, Actor{Email: "owner@example.com"}, car.ID, UpdateCarInput{PricePerDay: &price})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !repo.booked {
		t.Fatal("expected the car to be booked during the update")
	}
	if updated.PricePerDay != 80 || updated.Status != StatusBooked {
		t.Fatalf("expected price 80 and status Booked, got %v %s", updated.PricePerDay, updated.Status)
	}

	stored, err := repo.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != StatusBooked {
		t.Fatalf("expected concurrent booking to survive the edit, got %s", stored.Status)
	}
	if _, err := svc.MarkBooked(ctx, car.ID); !errors.Is(err, apierr.ErrAlreadyBooked) {
		t.Fatalf("expected second booking to be rejected, got %v", err)
	}
}

func TestServiceUpdateStatusRaceWithBooking(t *testing.T) {
	repo := &bookingDuringUpdateRepository{InMemoryRepository: NewInMemoryRepository(nil), beforeTransition: true}
	svc := NewService(repo)
	repo.svc = svc
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	booked := StatusBooked
	_, err = svc.Update(ctx, Actor{Admin: true}, car.ID, UpdateCarInput{Status: &booked})
	if !errors.Is(err, apierr.ErrAlreadyBooked) {
		t.Fatalf("expected already booked when a booking wins the race, got %v", err)
	}
}

func TestServiceUpdateReleasesBookedCarOnlyWithoutBooking(t *testing.T) {
	lookup := &stubBookingLookup{exists: true}
	svc := NewService(NewInMemoryRepository(nil), WithBookingLookup(lookup))
	ctx := context.Background()
	owner := Actor{Email: "owner@example.com"}

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.MarkBooked(ctx, car.ID); err != nil {
		t.Fatalf("mark booked failed: %v", err)
	}

	available := StatusAvailable
	_, err = svc.Update(ctx, owner, car.ID, UpdateCarInput{Status: &available})
	if !errors.Is(err, apierr.ErrAlreadyBooked) {
		t.Fatalf("expected release to be refused while booked, got %v", err)
	}
	got, err := svc.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusBooked {
		t.Fatalf("expected car to stay Booked, got %s", got.Status)
	}

	lookup.exists = false
	updated, err := svc.Update(ctx, owner, car.ID, UpdateCarInput{Status: &available})
	if err != nil {
		t.Fatalf("release without booking failed: %v", err)
	}
	if updated.Status != StatusAvailable {
		t.Fatalf("expected Available, got %s", updated.Status)
	}
	if lookup.calls != 2 || lookup.lastID != car.ID {
		t.Fatalf("expected lookup for %s twice, got %d calls for %s", car.ID, lookup.calls, lookup.lastID)
	}
}

func TestServiceUpdateRefusesReleaseWithoutLookup(t *testing.T) {
	svc := NewService(NewInMemoryRepository(nil))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.MarkBooked(ctx, car.ID); err != nil {
		t.Fatalf("mark booked failed: %v", err)
	}

	available := StatusAvailable
	if _, err := svc.Update(ctx, Actor{Admin: true}, car.ID, UpdateCarInput{Status: &available}); !errors.Is(err, apierr.ErrAlreadyBooked) {
		t.Fatalf("expected already booked, got %v", err)
	}
}

func TestServiceUpdateReleaseSurfacesLookupFailure(t *testing.T) {
	lookup := &stubBookingLookup{err: errors.New("db down")}
	svc := NewService(NewInMemoryRepository(nil), WithBookingLookup(lookup))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.MarkBooked(ctx, car.ID); err != nil {
		t.Fatalf("mark booked failed: %v", err)
	}

	available := StatusAvailable
	_, err = svc.Update(ctx, Actor{Admin: true}, car.ID, UpdateCarInput{Status: &available})
	if err == nil || errors.Is(err, apierr.ErrAlreadyBooked) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestServiceGetDoesNotCacheReadOverlappingWrite(t *testing.T) {
	repo := &bookingDuringGetRepository{InMemoryRepository: NewInMemoryRepository(nil)}
	cache := newMapCache()
	svc := NewService(repo, WithCache(cache, time.Minute))
	repo.svc = svc
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	repo.armed = true
	stale, err := svc.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stale.Status != StatusAvailable {
		t.Fatalf("expected the overlapping read to observe Available, got %s", stale.Status)
	}
	if cache.has(cacheKey(car.ID)) {
		t.Fatal("expected the overlapping read not to stay cached")
	}

	got, err := svc.Get(ctx, car.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusBooked {
		t.Fatalf("expected Booked after the write, got %s", got.Status)
	}
}

func TestServiceGetFallsBackWhenCacheFails(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	cache := newMapCache()
	cache.fail = true
	svc := NewService(repo, WithCache(cache, time.Minute))
	ctx := context.Background()

	car, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Get(ctx, car.ID); err != nil {
		t.Fatalf("expected repository fallback, got %v", err)
	}
}

func names(cars []Car) []string {
	out := make([]string, 0, len(cars))
	for _, c := range cars {
		out = append(out, c.Name)
	}
	return out
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return false, errors.New("cache down")
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// bookingDuringUpdateRepository books the car while an edit is in flight.
type bookingDuringUpdateRepository struct {
	*InMemoryRepository
	svc              *Service
	beforeTransition bool
	booked           bool
}

func (r *bookingDuringUpdateRepository) Update(ctx context.Context, car Car) (Car, error) {
	r.book(ctx, car.ID)
	return r.InMemoryRepository.Update(ctx, car)
}

func (r *bookingDuringUpdateRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (Car, error) {
	if r.beforeTransition {
		r.book(ctx, id)
	}
	return r.InMemoryRepository.TransitionStatus(ctx, id, from, to)
}

func (r *bookingDuringUpdateRepository) book(ctx context.Context, id uuid.UUID) {
	if r.booked {
		return
	}
	r.booked = true
	if _, err := r.svc.MarkBooked(ctx, id); err != nil {
		panic(err)
	}
}

// bookingDuringGetRepository books the car right after a read returns.
type bookingDuringGetRepository struct {
	*InMemoryRepository
	svc   *Service
	armed bool
}

func (r *bookingDuringGetRepository) Get(ctx context.Context, id uuid.UUID) (Car, error) {
	car, err := r.InMemoryRepository.Get(ctx, id)
	if err == nil && r.armed {
		r.armed = false
		if _, err := r.svc.MarkBooked(ctx, id); err != nil {
			return Car{}, err
		}
	}
	return car, err
}

type stubBookingLookup struct {
	exists bool
	err    error
	calls  int
	lastID uuid.UUID
}

func (s *stubBookingLookup) ExistsForCar(_ context.Context, carID uuid.UUID) (bool, error) {
	s.calls++
	s.lastID = carID
	return s.exists, s.err
}
