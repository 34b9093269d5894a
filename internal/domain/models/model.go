package models

import (
	"math"
	"time"
)

// ElasticityModel is a fitted constant-elasticity demand curve.
// It is replaced wholesale on retraining.
type ElasticityModel struct {
	Coefficient        float64    `json:"coefficient"`
	BaseDemand         float64    `json:"base_demand"`
	Intercept          float64    `json:"intercept"`
	StandardError      float64    `json:"standard_error"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	RSquared           float64    `json:"r_squared"`
	Observations       int        `json:"observations"`
	Degenerate         bool       `json:"degenerate,omitempty"`
	Diagnostic         string     `json:"diagnostic,omitempty"`
	TrainedAt          time.Time  `json:"trained_at"`
}

// Demand evaluates baseDemand * (price/referencePrice)^coefficient.
func (m ElasticityModel) Demand(price, referencePrice float64) float64 {
	if referencePrice <= 0 || price <= 0 {
		return 0
	}
	return m.BaseDemand * math.Pow(price/referencePrice, m.Coefficient)
}

// DemandModel is a Gamma(alpha, rate beta) prior over a Poisson purchase rate.
type DemandModel struct {
	Alpha          float64   `json:"alpha"`
	Beta           float64   `json:"beta"`
	SampleMean     float64   `json:"sample_mean"`
	SampleVariance float64   `json:"sample_variance"`
	Overdispersion float64   `json:"overdispersion_ratio"`
	Observations   int       `json:"observations"`
	Degenerate     bool      `json:"degenerate,omitempty"`
	Diagnostic     string    `json:"diagnostic,omitempty"`
	FittedAt       time.Time `json:"fitted_at"`
}

func (m DemandModel) Mean() float64 {
	return m.Alpha / m.Beta
}

func (m DemandModel) Variance() float64 {
	return m.Alpha / (m.Beta * m.Beta)
}

// Interval is a closed numeric range.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (i Interval) Contains(v float64) bool {
	return v >= i.Lower && v <= i.Upper
}
