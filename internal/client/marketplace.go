package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// User is the backend authorization record for an email.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
	Role     string `json:"role"`
}

// UserSync carries the profile fields pushed to the backend after sign-in.
type UserSync struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
}

// Car is a listing as served by the API.
type Car struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Model         string    `json:"model"`
	Category      string    `json:"category"`
	PricePerDay   float64   `json:"pricePerDay"`
	Location      string    `json:"location"`
	Image         string    `json:"image"`
	Description   string    `json:"description"`
	Features      []string  `json:"features"`
	Status        string    `json:"status"`
	ProviderName  string    `json:"providerName"`
	ProviderEmail string    `json:"providerEmail"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewCar is the payload of a new listing. The provider defaults to the caller.
type NewCar struct {
	Name          string   `json:"name"`
	Model         string   `json:"model,omitempty"`
	Category      string   `json:"category"`
	PricePerDay   float64  `json:"pricePerDay"`
	Location      string   `json:"location,omitempty"`
	Image         string   `json:"image"`
	Description   string   `json:"description,omitempty"`
	Features      []string `json:"features,omitempty"`
	ProviderName  string   `json:"providerName,omitempty"`
	ProviderEmail string   `json:"providerEmail,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// CarQuery filters the public listing.
type CarQuery struct {
	Category string
	Status   string
	Search   string
	Sort     string
	Limit    int
}

func (q CarQuery) values() url.Values {
	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set("category", q.Category)
	set("status", q.Status)
	set("q", q.Search)
	set("sort", q.Sort)
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values
}

// Booking is a reservation with the car fields copied at booking time.
type Booking struct {
	ID            string     `json:"_id"`
	CarID         string     `json:"carId"`
	Email         string     `json:"email"`
	CarName       string     `json:"carName"`
	Category      string     `json:"category"`
	RentPrice     float64    `json:"rentPrice"`
	Image         string     `json:"image"`
	Location      string     `json:"location"`
	ProviderEmail string     `json:"providerEmail"`
	StartDate     *time.Time `json:"startingDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	Comment       string     `json:"comment"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewBooking is the create-booking payload. The car fields are a copy of the
// listing the user saw; the server stores its own copy.
type NewBooking struct {
	CarID     string     `json:"carId"`
	Email     string     `json:"email"`
	StartDate *time.Time `json:"startingDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	Status    string     `json:"status,omitempty"`
	CarName   string     `json:"carName,omitempty"`
	Category  string     `json:"category,omitempty"`
	RentPrice float64    `json:"rentPrice,omitempty"`
	Image     string     `json:"image,omitempty"`
	Location  string     `json:"location,omitempty"`
}

// BookingPage is one page of the admin booking listing.
type BookingPage struct {
	Bookings      []Booking `json:"bookings"`
	Page          int       `json:"page"`
	Limit         int       `json:"limit"`
	TotalPages    int       `json:"totalPages"`
	TotalBookings int       `json:"totalBookings"`
}

// SyncUser creates the caller's user record or refreshes its profile.
func (c *Client) SyncUser(ctx context.Context, token string, input UserSync) (User, error) {
	var user User
	err := c.do(ctx, request{method: http.MethodPost, path: "/users", token: token, body: input}, &user)
	return user, err
}

func (c *Client) GetUser(ctx context.Context, token, email string) (User, error) {
	var user User
	err := c.do(ctx, request{method: http.MethodGet, path: "/user/" + url.PathEscape(email), token: token}, &user)
	return user, err
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	var list []User
	err := c.do(ctx, request{method: http.MethodGet, path: "/users", token: token}, &list)
	return list, err
}

func (c *Client) SetRole(ctx context.Context, token, email, role string) (User, error) {
	var user User
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/user/" + url.PathEscape(email) + "/role",
		token:  token,
		body:   map[string]string{"role": role},
	}, &user)
	return user, err
}

func (c *Client) ListCars(ctx context.Context, query CarQuery) ([]Car, error) {
	var list []Car
	err := c.do(ctx, request{method: http.MethodGet, path: "/cars", query: query.values()}, &list)
	return list, err
}

func (c *Client) GetCar(ctx context.Context, id string) (Car, error) {
	var car Car
	err := c.do(ctx, request{method: http.MethodGet, path: "/car/" + url.PathEscape(id)}, &car)
	return car, err
}

func (c *Client) CreateCar(ctx context.Context, token string, input NewCar) (Car, error) {
	var car Car
	err := c.do(ctx, request{method: http.MethodPost, path: "/cars", token: token, body: input}, &car)
	return car, err
}

// UpdateCar sends a partial update; only keys present in fields are changed.
func (c *Client) UpdateCar(ctx context.Context, token, id string, fields map[string]any) (Car, error) {
	var car Car
	err := c.do(ctx, request{method: http.MethodPut, path: "/car/" + url.PathEscape(id), token: token, body: fields}, &car)
	return car, err
}

func (c *Client) DeleteCar(ctx context.Context, token, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/car/" + url.PathEscape(id), token: token}, nil)
}

// MyCars lists listings published by providerEmail; empty means the caller.
func (c *Client) MyCars(ctx context.Context, token, providerEmail string) ([]Car, error) {
	query := url.Values{}
	if providerEmail != "" {
		query.Set("providerEmail", providerEmail)
	}
	var list []Car
	err := c.do(ctx, request{method: http.MethodGet, path: "/my-cars", token: token, query: query}, &list)
	return list, err
}

// ImportSummary reports the outcome of a CSV car import.
type ImportSummary struct {
	TotalRows         int  `json:"totalRows"`
	Imported          int  `json:"imported"`
	TruncatedRecords  bool `json:"truncatedRecords"`
	SkippedDuplicates []struct {
		Row    int    `json:"row"`
		Name   string `json:"name"`
		Reason string `json:"reason"`
	} `json:"skippedDuplicates"`
	Failed []struct {
		Row   int    `json:"row"`
		Name  string `json:"name"`
		Error string `json:"error"`
	} `json:"failed"`
}

// ImportCars uploads CSV listings for providerEmail; empty means the caller.
func (c *Client) ImportCars(ctx context.Context, token, providerEmail string, csv io.Reader) (ImportSummary, error) {
	query := url.Values{}
	if providerEmail != "" {
		query.Set("providerEmail", providerEmail)
	}
	var summary ImportSummary
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/cars/import",
		token:       token,
		query:       query,
		upload:      csv,
		contentType: "text/csv",
	}, &summary)
	return summary, err
}

func (c *Client) CreateBooking(ctx context.Context, token string, input NewBooking) (Booking, error) {
	var booking Booking
	err := c.do(ctx, request{method: http.MethodPost, path: "/bookings", token: token, body: input}, &booking)
	return booking, err
}

// MyBookings lists bookings made by email; empty means the caller.
func (c *Client) MyBookings(ctx context.Context, token, email string) ([]Booking, error) {
	query := url.Values{}
	if email != "" {
		query.Set("email", email)
	}
	var list []Booking
	err := c.do(ctx, request{method: http.MethodGet, path: "/my-bookings", token: token, query: query}, &list)
	return list, err
}

func (c *Client) AllBookings(ctx context.Context, token string, page, limit int) (BookingPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var result BookingPage
	err := c.do(ctx, request{method: http.MethodGet, path: "/bookings", token: token, query: query}, &result)
	return result, err
}

func (c *Client) CancelBooking(ctx context.Context, token, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/bookings/" + url.PathEscape(id), token: token}, nil)
}

// ExportBookings streams the admin CSV export of every booking into w.
func (c *Client) ExportBookings(ctx context.Context, token string, w io.Writer) error {
	return c.do(ctx, request{method: http.MethodGet, path: "/bookings/export", token: token, download: w}, nil)
}
