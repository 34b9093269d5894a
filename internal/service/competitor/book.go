// Package competitor tracks competitor prices streamed from a websocket feed.
package competitor

import (
	"slices"
	"strings"
	"sync"
	"time"

	"PriceOpt/internal/domain/models"
	drepo "PriceOpt/internal/domain/repository"
)

// Book keeps the latest quote per product and competitor. Quotes older than
// maxAge are ignored by readers; a zero maxAge keeps quotes forever.
type Book struct {
	mu     sync.RWMutex
	quotes map[string]map[string]models.CompetitorQuote
	maxAge time.Duration
	now    func() time.Time
}

func NewBook(maxAge time.Duration) *Book {
	return &Book{
		quotes: make(map[string]map[string]models.CompetitorQuote),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Apply stores q unless a newer quote from the same competitor is present.
func (b *Book) Apply(q models.CompetitorQuote) bool {
	if q.ProductID == "" || !models.IsFinite(q.Price) || q.Price <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	byComp, ok := b.quotes[q.ProductID]
	if !ok {
		byComp = make(map[string]models.CompetitorQuote)
		b.quotes[q.ProductID] = byComp
	}
	if prev, ok := byComp[q.Competitor]; ok && prev.Timestamp.After(q.Timestamp) {
		return false
	}
	byComp[q.Competitor] = q
	return true
}

// Quotes returns the fresh quotes of a product ordered by competitor name.
func (b *Book) Quotes(productID string) []models.CompetitorQuote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var cutoff time.Time
	if b.maxAge > 0 {
		cutoff = b.now().Add(-b.maxAge)
	}
	out := make([]models.CompetitorQuote, 0, len(b.quotes[productID]))
	for _, q := range b.quotes[productID] {
		if !cutoff.IsZero() && q.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, q)
	}
	slices.SortFunc(out, func(x, y models.CompetitorQuote) int {
		return strings.Compare(x.Competitor, y.Competitor)
	})
	return out
}

func (b *Book) Prices(productID string) []float64 {
	quotes := b.Quotes(productID)
	if len(quotes) == 0 {
		return nil
	}
	out := make([]float64, len(quotes))
	for i, q := range quotes {
		out[i] = q.Price
	}
	return out
}

var _ drepo.CompetitorBook = (*Book)(nil)
