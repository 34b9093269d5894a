package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PriceOpt/internal/domain/models"
	domrepo "PriceOpt/internal/domain/repository"
	pkgkafka "PriceOpt/pkg/kafka"
	"PriceOpt/pkg/logger"
	"PriceOpt/pkg/metrics"
)

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrTestNotFound) ||
		errors.Is(err, models.ErrVariantNotFound) ||
		errors.Is(err, models.ErrProductNotFound)
}

// KafkaSalesHandler ingests sales observations into the history store.
type KafkaSalesHandler struct {
	topic   string
	orch    *PricingOrchestrator
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaSalesHandler(topic string, orch *PricingOrchestrator, m domrepo.Metrics, l *logger.Logger) *KafkaSalesHandler {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &KafkaSalesHandler{topic: topic, orch: orch, metrics: m, log: l}
}

func (h *KafkaSalesHandler) Topic() string { return h.topic }

// incoming message schema: a single PriceObservation or an array of them
func (h *KafkaSalesHandler) Handle(ctx context.Context, b []byte) error {
	obs, err := decodeObservations(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.log.Warn("drop malformed sales event", logger.String("topic", h.topic), logger.Error(err))
		return nil
	}

	start := time.Now()
	if err := h.orch.RecordSales(ctx, obs); err != nil {
		if permanent(err) {
			h.log.Warn("drop invalid sales event", logger.String("topic", h.topic), logger.Error(err))
			return nil
		}
		return err
	}
	h.metrics.RecordLatency("ingest_sales", time.Since(start).Seconds())
	return nil
}

func decodeObservations(b []byte) ([]models.PriceObservation, error) {
	var batch []models.PriceObservation
	if err := json.Unmarshal(b, &batch); err == nil {
		return batch, nil
	}
	var one models.PriceObservation
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, fmt.Errorf("decode sales event: %w", err)
	}
	return []models.PriceObservation{one}, nil
}

// KafkaObservationsHandler applies A/B test increments from the event stream.
type KafkaObservationsHandler struct {
	topic   string
	orch    *PricingOrchestrator
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaObservationsHandler(topic string, orch *PricingOrchestrator, m domrepo.Metrics, l *logger.Logger) *KafkaObservationsHandler {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &KafkaObservationsHandler{topic: topic, orch: orch, metrics: m, log: l}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ObservationEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.log.Warn("drop malformed observation event", logger.String("topic", h.topic), logger.Error(err))
		return nil
	}

	_, err := h.orch.RecordObservation(ctx, ev.TestID, ev.Variant, ev.Conversions, ev.Impressions)
	if err != nil {
		if permanent(err) {
			h.log.Warn("drop observation event",
				logger.String("test_id", ev.TestID),
				logger.String("variant", ev.Variant),
				logger.Error(err))
			return nil
		}
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*KafkaSalesHandler)(nil)
	_ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
)
