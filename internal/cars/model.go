package cars

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStatusConflict is returned by repositories when a conditional status
// transition finds the car in a different state than expected.
var ErrStatusConflict = errors.New("car status changed concurrently")

// Category enumerates the listing categories offered in the marketplace.
type Category string

const (
	CategorySedan     Category = "Sedan"
	CategorySUV       Category = "SUV"
	CategoryHatchback Category = "Hatchback"
	CategoryLuxury    Category = "Luxury"
	CategorySports    Category = "Sports"
	CategoryVan       Category = "Van"
	CategoryTruck     Category = "Truck"
	CategoryElectric  Category = "Electric"
	CategoryHybrid    Category = "Hybrid"
)

// Categories lists every supported category in display order.
var Categories = []Category{
	CategorySedan,
	CategorySUV,
	CategoryHatchback,
	CategoryLuxury,
	CategorySports,
	CategoryVan,
	CategoryTruck,
	CategoryElectric,
	CategoryHybrid,
}

// Valid reports whether c is a supported category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the availability of a listing. A car is bookable only while Available.
type Status string

const (
	StatusAvailable Status = "Available"
	StatusBooked    Status = "Booked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusBooked
}

// Car is a listing published by a provider.
type Car struct {
	ID            uuid.UUID `json:"_id"`
	Name          string    `json:"name"`
	Model         string    `json:"model,omitempty"`
	Category      Category  `json:"category"`
	PricePerDay   float64   `json:"pricePerDay"`
	Location      string    `json:"location"`
	Image         string    `json:"image"`
	Description   string    `json:"description"`
	Features      []string  `json:"features"`
	Status        Status    `json:"status"`
	ProviderName  string    `json:"providerName"`
	ProviderEmail string    `json:"providerEmail"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Actor identifies the caller of a mutating operation.
type Actor struct {
	Email string
	Admin bool
}

// CanManage reports whether the actor may edit or delete car.
func (a Actor) CanManage(car Car) bool {
	return a.Admin || (a.Email != "" && a.Email == car.ProviderEmail)
}

// CreateCarInput captures the data needed to publish a listing. Provider
// fields come from the authenticated caller, never from the request body.
type CreateCarInput struct {
	Name          string   `validate:"required,max=120"`
	Model         string   `validate:"max=120"`
	Category      Category `validate:"required"`
	PricePerDay   float64  `validate:"gt=0"`
	Location      string   `validate:"max=200"`
	Image         string   `validate:"required,url"`
	Description   string   `validate:"max=4000"`
	Features      []string `validate:"max=30,dive,max=80"`
	ProviderName  string
	ProviderEmail string `validate:"required,email"`
}

// UpdateCarInput captures the editable fields of a listing.
type UpdateCarInput struct {
	Name        *string
	Model       *string
	Category    *Category
	PricePerDay *float64
	Location    *string
	Image       *string
	Description *string
	Features    *[]string
	Status      *Status
}

// SortOrder controls listing order.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

// ListOptions describes filters for listing cars.
type ListOptions struct {
	Category      *Category
	Status        *Status
	ProviderEmail *string
	Query         *string
	Sort          SortOrder
	Limit         *int
}

// Repository defines persistence operations for cars.
type Repository interface {
	Create(ctx context.Context, car Car) (Car, error)
	Get(ctx context.Context, id uuid.UUID) (Car, error)
	List(ctx context.Context, opts ListOptions) ([]Car, error)
	// Update persists the editable fields of car. The stored status is left
	// as is; status only changes through TransitionStatus.
	Update(ctx context.Context, car Car) (Car, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// TransitionStatus sets the status to `to` only when it currently equals
	// `from`, returning ErrStatusConflict otherwise.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (Car, error)
}
