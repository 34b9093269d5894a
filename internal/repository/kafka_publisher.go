package repository

import (
	"context"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/domain/repository"
	"PriceOpt/pkg/kafka"
)

const (
	TopicDecisions    = "pricing.decisions"
	TopicExperiments  = "pricing.experiments"
	TopicSales        = "pricing.sales"
	TopicObservations = "pricing.abtest.observations"
)

// Topics overrides the default topic names.
type Topics struct {
	Decisions    string `yaml:"decisions" default:"pricing.decisions"`
	Experiments  string `yaml:"experiments" default:"pricing.experiments"`
	Sales        string `yaml:"sales" default:"pricing.sales"`
	Observations string `yaml:"observations" default:"pricing.abtest.observations"`
}

func (t Topics) withDefaults() Topics {
	if t.Decisions == "" {
		t.Decisions = TopicDecisions
	}
	if t.Experiments == "" {
		t.Experiments = TopicExperiments
	}
	if t.Sales == "" {
		t.Sales = TopicSales
	}
	if t.Observations == "" {
		t.Observations = TopicObservations
	}
	return t
}

type publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
	Close() error
}

// KafkaEventPublisher emits decisions and experiment snapshots keyed by
// product and test ID so a partition sees one entity's events in order.
type KafkaEventPublisher struct {
	producer publisher
	topics   Topics
}

func NewKafkaEventPublisher(p *kafka.Producer, topics Topics) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, topics: topics.withDefaults()}
}

func (k *KafkaEventPublisher) PublishDecision(ctx context.Context, rec models.PricingRecord) error {
	return k.producer.Publish(ctx, k.topics.Decisions, []byte(rec.ProductID), rec)
}

func (k *KafkaEventPublisher) PublishExperiment(ctx context.Context, t *models.ABTest) error {
	return k.producer.Publish(ctx, k.topics.Experiments, []byte(t.ID), t)
}

func (k *KafkaEventPublisher) Close() error { return k.producer.Close() }

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishDecision(context.Context, models.PricingRecord) error { return nil }
func (NopPublisher) PublishExperiment(context.Context, *models.ABTest) error     { return nil }
func (NopPublisher) Close() error                                                { return nil }

var (
	_ repository.EventPublisher = (*KafkaEventPublisher)(nil)
	_ repository.EventPublisher = NopPublisher{}
)
