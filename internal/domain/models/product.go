package models

import (
	"fmt"
	"math"
	"time"
)

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	CurrentPrice   float64   `json:"current_price"`
	Cost           float64   `json:"cost"`
	InventoryLevel int       `json:"inventory_level"`
	Category       string    `json:"category,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate enforces cost < currentPrice and a non-negative inventory.
func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if !IsFinite(p.CurrentPrice) || p.CurrentPrice <= 0 {
		return fmt.Errorf("%w: current price must be positive, got %v", ErrInvalidInput, p.CurrentPrice)
	}
	if !IsFinite(p.Cost) || p.Cost < 0 {
		return fmt.Errorf("%w: cost must be non-negative, got %v", ErrInvalidInput, p.Cost)
	}
	if p.Cost >= p.CurrentPrice {
		return fmt.Errorf("%w: cost %.4f must be below current price %.4f", ErrInvalidInput, p.Cost, p.CurrentPrice)
	}
	if p.InventoryLevel < 0 {
		return fmt.Errorf("%w: inventory level must be non-negative", ErrInvalidInput)
	}
	return nil
}

// PriceObservation is one point of sales history for a product.
type PriceObservation struct {
	ProductID    string    `json:"product_id"`
	Timestamp    time.Time `json:"timestamp"`
	Price        float64   `json:"price"`
	QuantitySold int       `json:"quantity_sold"`
	Revenue      float64   `json:"revenue"`
}

// SampleProducts is the demo catalog seeded on startup when enabled.
func SampleProducts() []Product {
	return []Product{
		{ID: "PROD001", Name: "Premium Widget", CurrentPrice: 29.99, Cost: 15.50, InventoryLevel: 450, Category: "Electronics"},
		{ID: "PROD002", Name: "Smart Gadget", CurrentPrice: 49.99, Cost: 25.00, InventoryLevel: 230, Category: "Electronics"},
		{ID: "PROD003", Name: "Eco Bottle", CurrentPrice: 19.99, Cost: 8.00, InventoryLevel: 780, Category: "Home"},
	}
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
