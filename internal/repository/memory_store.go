package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/domain/repository"
)

// MemoryModelStore keeps products and models in process memory.
// Values are copied in and out so callers never share state with the store.
type MemoryModelStore struct {
	mu         sync.RWMutex
	products   map[string]models.Product
	elasticity map[string]models.ElasticityModel
	demand     map[string]models.DemandModel
}

func NewMemoryModelStore() *MemoryModelStore {
	return &MemoryModelStore{
		products:   make(map[string]models.Product),
		elasticity: make(map[string]models.ElasticityModel),
		demand:     make(map[string]models.DemandModel),
	}
}

func (s *MemoryModelStore) SaveProduct(_ context.Context, p models.Product) error {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryModelStore) GetProduct(_ context.Context, productID string) (models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return models.Product{}, fmt.Errorf("%w: %s", models.ErrProductNotFound, productID)
	}
	return p, nil
}

func (s *MemoryModelStore) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryModelStore) SaveElasticity(_ context.Context, productID string, m models.ElasticityModel) error {
	s.mu.Lock()
	s.elasticity[productID] = m
	s.mu.Unlock()
	return nil
}

func (s *MemoryModelStore) GetElasticity(_ context.Context, productID string) (models.ElasticityModel, bool, error) {
	s.mu.RLock()
	m, ok := s.elasticity[productID]
	s.mu.RUnlock()
	return m, ok, nil
}

func (s *MemoryModelStore) ModelIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.elasticity)+len(s.demand))
	for id := range s.elasticity {
		seen[id] = struct{}{}
	}
	for id := range s.demand {
		seen[id] = struct{}{}
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryModelStore) SaveDemand(_ context.Context, productID string, m models.DemandModel) error {
	s.mu.Lock()
	s.demand[productID] = m
	s.mu.Unlock()
	return nil
}

func (s *MemoryModelStore) GetDemand(_ context.Context, productID string) (models.DemandModel, bool, error) {
	s.mu.RLock()
	m, ok := s.demand[productID]
	s.mu.RUnlock()
	return m, ok, nil
}

// MemoryExperimentStore keeps A/B tests in process memory.
type MemoryExperimentStore struct {
	mu    sync.Mutex
	tests map[string]*models.ABTest
}

func NewMemoryExperimentStore() *MemoryExperimentStore {
	return &MemoryExperimentStore{tests: make(map[string]*models.ABTest)}
}

func (s *MemoryExperimentStore) CreateTest(_ context.Context, t *models.ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tests[t.ID]; exists {
		return fmt.Errorf("%w: test %s already exists", models.ErrInvalidInput, t.ID)
	}
	s.tests[t.ID] = t.Clone()
	return nil
}

func (s *MemoryExperimentStore) GetTest(_ context.Context, testID string) (*models.ABTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[testID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, testID)
	}
	return t.Clone(), nil
}

func (s *MemoryExperimentStore) UpdateTest(_ context.Context, testID string, fn func(*models.ABTest) error) (*models.ABTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[testID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, testID)
	}
	next := t.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.tests[testID] = next
	return next.Clone(), nil
}

func (s *MemoryExperimentStore) ListTests(_ context.Context) ([]*models.ABTest, error) {
	s.mu.Lock()
	out := make([]*models.ABTest, 0, len(s.tests))
	for _, t := range s.tests {
		out = append(out, t.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryHistoryStore is a bounded in-process HistoryStore used when
// ClickHouse is disabled.
type MemoryHistoryStore struct {
	mu           sync.RWMutex
	maxEntries   int
	observations []models.PriceObservation
	decisions    []models.PricingRecord
}

func NewMemoryHistoryStore(maxEntries int) *MemoryHistoryStore {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &MemoryHistoryStore{maxEntries: maxEntries}
}

func (s *MemoryHistoryStore) Init(context.Context) error { return nil }

func (s *MemoryHistoryStore) AppendObservations(_ context.Context, obs []models.PriceObservation) error {
	s.mu.Lock()
	s.observations = trimFront(append(s.observations, obs...), s.maxEntries)
	s.mu.Unlock()
	return nil
}

func (s *MemoryHistoryStore) Observations(_ context.Context, productID string, from, to time.Time, limit int) ([]models.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PriceObservation, 0)
	for _, o := range s.observations {
		if o.ProductID != productID || o.Timestamp.Before(from) || o.Timestamp.After(to) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryHistoryStore) AppendDecision(_ context.Context, rec models.PricingRecord) error {
	s.mu.Lock()
	s.decisions = trimFront(append(s.decisions, rec), s.maxEntries)
	s.mu.Unlock()
	return nil
}

func (s *MemoryHistoryStore) Decisions(_ context.Context, productID string, limit int) ([]models.PricingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PricingRecord, 0)
	for _, r := range s.decisions {
		if productID == "" || r.ProductID == productID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryHistoryStore) Health(context.Context) error { return nil }
func (s *MemoryHistoryStore) Close() error                 { return nil }

func trimFront[T any](xs []T, limit int) []T {
	if len(xs) <= limit {
		return xs
	}
	return slices.Clone(xs[len(xs)-limit:])
}

var (
	_ repository.ModelStore      = (*MemoryModelStore)(nil)
	_ repository.ExperimentStore = (*MemoryExperimentStore)(nil)
	_ repository.HistoryStore    = (*MemoryHistoryStore)(nil)
)
