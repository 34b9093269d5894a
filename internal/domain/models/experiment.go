package models

import (
	"maps"
	"time"
)

type TestStatus string

const (
	TestInitialized TestStatus = "initialized"
	TestRunning     TestStatus = "running"
	TestConcluded   TestStatus = "concluded"
)

// Variant holds the running counts of one arm. 0 <= Conversions <= Impressions.
type Variant struct {
	Price       float64 `json:"price"`
	Conversions int64   `json:"conversions"`
	Impressions int64   `json:"impressions"`
}

func (v Variant) ConversionRate() float64 {
	if v.Impressions == 0 {
		return 0
	}
	return float64(v.Conversions) / float64(v.Impressions)
}

type ABTest struct {
	ID         string             `json:"test_id"`
	ProductID  string             `json:"product_id"`
	Variants   map[string]Variant `json:"variants"`
	Status     TestStatus         `json:"status"`
	Winner     string             `json:"winner,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with t.
func (t *ABTest) Clone() *ABTest {
	if t == nil {
		return nil
	}
	c := *t
	c.Variants = maps.Clone(t.Variants)
	return &c
}

// TotalImpressions sums impressions over all variants.
func (t *ABTest) TotalImpressions() int64 {
	var n int64
	for _, v := range t.Variants {
		n += v.Impressions
	}
	return n
}

// Posterior is the Beta posterior of one variant's conversion rate.
type Posterior struct {
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	Mean           float64 `json:"mean"`
	ConversionRate float64 `json:"conversion_rate"`
}

// WinnerResult is the evaluation of a test. It is empty when no observations exist.
type WinnerResult struct {
	TestID        string               `json:"test_id"`
	Winner        string               `json:"winner,omitempty"`
	Confidence    float64              `json:"confidence,omitempty"`
	Probabilities map[string]float64   `json:"probabilities"`
	ExpectedLoss  map[string]float64   `json:"expected_loss,omitempty"`
	Posteriors    map[string]Posterior `json:"posteriors,omitempty"`
	Samples       int                  `json:"samples,omitempty"`
}

func (r WinnerResult) Empty() bool {
	return len(r.Probabilities) == 0
}

// ObservationEvent is an A/B increment delivered over the event stream.
type ObservationEvent struct {
	TestID      string `json:"test_id"`
	Variant     string `json:"variant"`
	Conversions int64  `json:"conversions"`
	Impressions int64  `json:"impressions"`
}
