package main

import (
	"time"

	"github.com/google/uuid"

	"rentwheels/internal/cars"
)

const demoProviderEmail = "demo-host@rentwheels.dev"

// seedDemoCars returns listings for local development.
func seedDemoCars() []cars.Car {
	now := time.Now().UTC()

	car := func(offset int, name, model string, category cars.Category, price float64, location, image, description string, features ...string) cars.Car {
		created := now.Add(time.Duration(offset) * time.Minute)
		return cars.Car{
			ID:            uuid.New(),
			Name:          name,
			Model:         model,
			Category:      category,
			PricePerDay:   price,
			Location:      location,
			Image:         image,
			Description:   description,
			Features:      features,
			Status:        cars.StatusAvailable,
			ProviderName:  "Demo Host",
			ProviderEmail: demoProviderEmail,
			CreatedAt:     created,
			UpdatedAt:     created,
		}
	}

	return []cars.Car{
		car(0, "Toyota Corolla", "2022", cars.CategorySedan, 45, "Dhaka",
			"https://images.rentwheels.dev/corolla.jpg",
			"Reliable compact sedan for city trips.", "Air Conditioning", "Bluetooth", "Backup Camera"),
		car(1, "Honda CR-V", "2021", cars.CategorySUV, 70, "Chattogram",
			"https://images.rentwheels.dev/crv.jpg",
			"Roomy SUV with all-wheel drive.", "AWD", "GPS", "Roof Rack"),
		car(2, "Tesla Model 3", "2023", cars.CategoryElectric, 110, "Dhaka",
			"https://images.rentwheels.dev/model3.jpg",
			"Long range electric sedan with autopilot.", "Autopilot", "Supercharging", "Heated Seats"),
		car(3, "Toyota Prius", "2020", cars.CategoryHybrid, 50, "Sylhet",
			"https://images.rentwheels.dev/prius.jpg",
			"Efficient hybrid for long drives.", "Cruise Control", "Bluetooth"),
		car(4, "Ford Transit", "2019", cars.CategoryVan, 95, "Khulna",
			"https://images.rentwheels.dev/transit.jpg",
			"Twelve seat van for group travel.", "12 Seats", "Rear AC"),
		car(5, "BMW 5 Series", "2022", cars.CategoryLuxury, 160, "Dhaka",
			"https://images.rentwheels.dev/bmw5.jpg",
			"Executive sedan with leather interior.", "Leather Seats", "Sunroof", "Premium Audio"),
	}
}
