package usecase

import (
	"context"
	"encoding/json"
	"time"

	"PriceOpt/pkg/logger"
	"PriceOpt/pkg/queue"
)

const RetrainJobType = "pricing.retrain"

// RetrainPayload asks for both models of a product to be refit from the
// observations recorded since Since.
type RetrainPayload struct {
	ProductID string    `json:"product_id"`
	Since     time.Time `json:"since"`
}

// RetrainJob runs RetrainFromHistory off the request path.
type RetrainJob struct {
	orch *PricingOrchestrator
	log  *logger.Logger
}

func NewRetrainJob(orch *PricingOrchestrator, l *logger.Logger) *RetrainJob {
	if l == nil {
		l = logger.Nop()
	}
	return &RetrainJob{orch: orch, log: l}
}

func (j *RetrainJob) Type() string { return RetrainJobType }

// Handle drops payloads that no retry could fix.
func (j *RetrainJob) Handle(ctx context.Context, raw json.RawMessage) error {
	p, err := queue.Decode[RetrainPayload](raw)
	if err != nil {
		j.log.Warn("drop malformed retrain job", logger.Error(err))
		return nil
	}
	res, err := j.orch.RetrainFromHistory(ctx, p.ProductID, p.Since)
	if err != nil {
		if permanent(err) {
			j.log.Warn("drop retrain job", logger.String("product_id", p.ProductID), logger.Error(err))
			return nil
		}
		return err
	}
	j.log.Info("retrained from history",
		logger.String("product_id", p.ProductID),
		logger.Int("observations", res.Observations),
		logger.Float64("elasticity", res.Elasticity.Coefficient))
	return nil
}

var _ queue.Job = (*RetrainJob)(nil)
