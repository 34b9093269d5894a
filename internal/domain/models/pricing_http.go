package models

import "time"

// Requests for the pricing HTTP endpoints. Path parameters are bound with
// `param` tags and never read from the body.

type RegisterProductRequest struct {
	ID             string  `json:"id" validate:"required,max=64"`
	Name           string  `json:"name" validate:"max=256"`
	CurrentPrice   float64 `json:"current_price" validate:"gt=0"`
	Cost           float64 `json:"cost" validate:"gte=0"`
	InventoryLevel int     `json:"inventory_level" validate:"gte=0"`
	Category       string  `json:"category"`
}

func (r RegisterProductRequest) Product() Product {
	return Product{
		ID:             r.ID,
		Name:           r.Name,
		CurrentPrice:   r.CurrentPrice,
		Cost:           r.Cost,
		InventoryLevel: r.InventoryLevel,
		Category:       r.Category,
	}
}

type ProductPathRequest struct {
	ProductID string `param:"id" json:"-" validate:"required"`
}

type TrainElasticityRequest struct {
	ProductID  string    `param:"id" json:"-" validate:"required"`
	Prices     []float64 `json:"prices" validate:"required,min=2,dive,gt=0"`
	Quantities []float64 `json:"quantities" validate:"required,min=2,dive,gte=0"`
}

type FitDemandRequest struct {
	ProductID string `param:"id" json:"-" validate:"required"`
	Counts    []int  `json:"counts" validate:"required,min=1,dive,gte=0"`
}

type OptimizeRequest struct {
	ProductID        string    `param:"id" json:"-" validate:"required"`
	CurrentPrice     float64   `json:"current_price" validate:"gt=0"`
	Cost             float64   `json:"cost" validate:"gte=0"`
	CompetitorPrices []float64 `json:"competitor_prices" validate:"max=100,dive,gt=0"`
	Inventory        float64   `json:"inventory" validate:"gte=0"`
	TargetInventory  float64   `json:"target_inventory" validate:"gte=0"`
}

type OptimizeProductRequest struct {
	ProductID        string    `param:"id" json:"-" validate:"required"`
	CompetitorPrices []float64 `json:"competitor_prices" validate:"max=100,dive,gt=0"`
	TargetInventory  float64   `json:"target_inventory" validate:"gte=0"`
}

type RefineRequest struct {
	OptimizeRequest
	Iterations int `json:"iterations" default:"30" validate:"gte=1,lte=200"`
}

type CreateABTestRequest struct {
	ProductID string             `json:"product_id" validate:"required"`
	Variants  map[string]float64 `json:"variants" validate:"required,min=2,max=10,dive,keys,required,endkeys,gt=0"`
}

type ObservationRequest struct {
	TestID      string `param:"id" json:"-" validate:"required"`
	Variant     string `json:"variant" validate:"required"`
	Conversions int64  `json:"conversions" validate:"gte=0,ltefield=Impressions"`
	Impressions int64  `json:"impressions" validate:"gte=0"`
}

type TestPathRequest struct {
	TestID string `param:"id" json:"-" validate:"required"`
}

type HistoryRequest struct {
	ProductID string `param:"id" json:"-" validate:"required"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type RetrainRequest struct {
	ProductID string `param:"id" json:"-" validate:"required"`
	Since     string `query:"since" json:"since" default:"30d"`
	Async     bool   `query:"async" json:"async"`
}

type SalesRequest struct {
	Observations []SaleObservation `json:"observations" validate:"required,min=1,max=10000,dive"`
}

type SaleObservation struct {
	ProductID    string    `json:"product_id" validate:"required"`
	Timestamp    time.Time `json:"timestamp"`
	Price        float64   `json:"price" validate:"gt=0"`
	QuantitySold int       `json:"quantity_sold" validate:"gte=0"`
	Revenue      float64   `json:"revenue" validate:"gte=0"`
}

func (r SalesRequest) PriceObservations() []PriceObservation {
	out := make([]PriceObservation, len(r.Observations))
	for i, o := range r.Observations {
		out[i] = PriceObservation(o)
	}
	return out
}
