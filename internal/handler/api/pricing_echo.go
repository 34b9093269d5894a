package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/service/ratelimit"
	"PriceOpt/internal/services/optimizer"
	"PriceOpt/internal/usecase"
	"PriceOpt/pkg/cache"
	xhttp "PriceOpt/pkg/http"
	xlogger "PriceOpt/pkg/logger"
	"PriceOpt/pkg/queue"
	"PriceOpt/pkg/util"

	"github.com/labstack/echo/v4"
)

const (
	reportCacheKey = "priceopt:report"
	reportCacheTTL = 15 * time.Second
)

// PricingEchoHandler exposes the pricing orchestrator over HTTP.
type PricingEchoHandler struct {
	logger  *xlogger.Logger
	orch    *usecase.PricingOrchestrator
	cache   cache.Service
	limiter *ratelimit.Limiter
	jobs    queue.Enqueuer
}

// NewPricingEchoHandler builds the handler. cache and limiter are optional.
func NewPricingEchoHandler(logger *xlogger.Logger, orch *usecase.PricingOrchestrator, c cache.Service, limiter *ratelimit.Limiter) *PricingEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PricingEchoHandler{logger: logger, orch: orch, cache: c, limiter: limiter}
}

// SetJobQueue enables asynchronous retraining.
func (h *PricingEchoHandler) SetJobQueue(q queue.Enqueuer) { h.jobs = q }

func (h *PricingEchoHandler) RegisterRoutes(e *echo.Echo) {
	var limited []echo.MiddlewareFunc
	if h.limiter != nil {
		limited = append(limited, h.limiter.Middleware())
	}

	g := e.Group("/api")
	g.GET("/products", h.ListProducts)
	g.POST("/products", h.RegisterProduct)
	g.GET("/products/:id", h.GetProduct)
	g.POST("/products/:id/elasticity", h.TrainElasticity)
	g.POST("/products/:id/demand", h.FitDemand)
	g.POST("/products/:id/optimize", h.Optimize, limited...)
	g.POST("/products/:id/reprice", h.Reprice, limited...)
	g.POST("/products/:id/refine", h.Refine, limited...)
	g.POST("/products/:id/retrain", h.Retrain)
	g.GET("/products/:id/history", h.History)
	g.GET("/products/:id/revenue", h.Revenue)
	g.POST("/sales", h.RecordSales)

	g.GET("/abtests", h.ListTests)
	g.POST("/abtests", h.CreateTest)
	g.GET("/abtests/:id", h.GetTest)
	g.POST("/abtests/:id/observations", h.RecordObservation)
	g.GET("/abtests/:id/winner", h.Winner)
	g.POST("/abtests/:id/conclude", h.Conclude)

	g.GET("/report", h.Report)
	g.GET("/export", h.Export)
}

func (h *PricingEchoHandler) fail(c echo.Context, op string, err error) error {
	mapped := toAppError(err)
	var appErr *xhttp.AppError
	if errors.As(mapped, &appErr) {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	} else {
		h.logger.Error(op+" failed", xlogger.Error(err), xlogger.String("path", c.Path()))
	}
	return xhttp.AppErrorResponse(c, mapped)
}

// invalidate drops cached aggregates after a write.
func (h *PricingEchoHandler) invalidate(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, reportCacheKey); err != nil {
		h.logger.Warn("report cache invalidation failed", xlogger.Error(err))
	}
}

func (h *PricingEchoHandler) ListProducts(c echo.Context) error {
	products, err := h.orch.ListProducts(c.Request().Context())
	if err != nil {
		return h.fail(c, "list products", err)
	}
	return xhttp.ListResponse(c, products, int64(len(products)))
}

func (h *PricingEchoHandler) RegisterProduct(c echo.Context) error {
	req := &models.RegisterProductRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	p, err := h.orch.RegisterProduct(ctx, req.Product())
	if err != nil {
		return h.fail(c, "register product", err)
	}
	h.invalidate(ctx)
	return xhttp.CreatedResponse(c, p)
}

func (h *PricingEchoHandler) GetProduct(c echo.Context) error {
	req := &models.ProductPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.orch.GetProduct(c.Request().Context(), req.ProductID)
	if err != nil {
		return h.fail(c, "get product", err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *PricingEchoHandler) TrainElasticity(c echo.Context) error {
	req := &models.TrainElasticityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	m, err := h.orch.TrainElasticity(ctx, req.ProductID, req.Prices, req.Quantities)
	if err != nil {
		return h.fail(c, "train elasticity", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, m)
}

func (h *PricingEchoHandler) FitDemand(c echo.Context) error {
	req := &models.FitDemandRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	m, err := h.orch.FitDemandModel(ctx, req.ProductID, req.Counts)
	if err != nil {
		return h.fail(c, "fit demand", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, m)
}

func priceInput(req models.OptimizeRequest) optimizer.PriceInput {
	return optimizer.PriceInput{
		CurrentPrice:     req.CurrentPrice,
		Cost:             req.Cost,
		CompetitorPrices: req.CompetitorPrices,
		Inventory:        req.Inventory,
		TargetInventory:  req.TargetInventory,
	}
}

func (h *PricingEchoHandler) Optimize(c echo.Context) error {
	req := &models.OptimizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	res, err := h.orch.OptimizePrice(ctx, req.ProductID, priceInput(*req))
	if err != nil {
		return h.fail(c, "optimize price", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, res)
}

// Reprice optimizes from the stored catalog entry and applies the new price.
func (h *PricingEchoHandler) Reprice(c echo.Context) error {
	req := &models.OptimizeProductRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	res, err := h.orch.OptimizeProduct(ctx, req.ProductID, req.CompetitorPrices, req.TargetInventory)
	if err != nil {
		return h.fail(c, "reprice product", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) Refine(c echo.Context) error {
	req := &models.RefineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.orch.RefinePrice(c.Request().Context(), req.ProductID, priceInput(req.OptimizeRequest), req.Iterations)
	if err != nil {
		return h.fail(c, "refine price", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) Retrain(c echo.Context) error {
	req := &models.RetrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since, ok := util.ParseSince(req.Since, time.Now())
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid since %q", req.Since))
	}
	ctx := c.Request().Context()
	if req.Async {
		if h.jobs == nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("asynchronous retraining is not enabled"))
		}
		if _, err := h.orch.GetProduct(ctx, req.ProductID); err != nil {
			return h.fail(c, "retrain", err)
		}
		id, err := h.jobs.Enqueue(ctx, usecase.RetrainJobType, usecase.RetrainPayload{ProductID: req.ProductID, Since: since})
		if err != nil {
			return h.fail(c, "enqueue retrain", err)
		}
		return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"job_id": id, "product_id": req.ProductID})
	}
	res, err := h.orch.RetrainFromHistory(ctx, req.ProductID, since)
	if err != nil {
		return h.fail(c, "retrain", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	recs, err := h.orch.History(c.Request().Context(), req.ProductID, req.Limit)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *PricingEchoHandler) Revenue(c echo.Context) error {
	req := &models.ProductPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m, err := h.orch.RevenueMetrics(c.Request().Context(), req.ProductID)
	if err != nil {
		return h.fail(c, "revenue metrics", err)
	}
	return xhttp.SuccessResponse(c, m)
}

func (h *PricingEchoHandler) RecordSales(c echo.Context) error {
	req := &models.SalesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.orch.RecordSales(c.Request().Context(), req.PriceObservations()); err != nil {
		return h.fail(c, "record sales", err)
	}
	return xhttp.CreatedResponse(c, map[string]int{"recorded": len(req.Observations)})
}

func (h *PricingEchoHandler) ListTests(c echo.Context) error {
	tests, err := h.orch.ListTests(c.Request().Context())
	if err != nil {
		return h.fail(c, "list tests", err)
	}
	return xhttp.ListResponse(c, tests, int64(len(tests)))
}

func (h *PricingEchoHandler) CreateTest(c echo.Context) error {
	req := &models.CreateABTestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	t, err := h.orch.CreateABTest(ctx, req.ProductID, req.Variants)
	if err != nil {
		return h.fail(c, "create test", err)
	}
	h.invalidate(ctx)
	return xhttp.CreatedResponse(c, t)
}

func (h *PricingEchoHandler) GetTest(c echo.Context) error {
	req := &models.TestPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.orch.GetTest(c.Request().Context(), req.TestID)
	if err != nil {
		return h.fail(c, "get test", err)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *PricingEchoHandler) RecordObservation(c echo.Context) error {
	req := &models.ObservationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.orch.RecordObservation(c.Request().Context(), req.TestID, req.Variant, req.Conversions, req.Impressions)
	if err != nil {
		return h.fail(c, "record observation", err)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *PricingEchoHandler) Winner(c echo.Context) error {
	req := &models.TestPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.orch.CalculateWinner(c.Request().Context(), req.TestID)
	if err != nil {
		return h.fail(c, "calculate winner", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) Conclude(c echo.Context) error {
	req := &models.TestPathRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	t, err := h.orch.ConcludeTest(ctx, req.TestID)
	if err != nil {
		return h.fail(c, "conclude test", err)
	}
	h.invalidate(ctx)
	return xhttp.SuccessResponse(c, t)
}

// Report serves the portfolio report, cached for a few seconds.
func (h *PricingEchoHandler) Report(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		rep models.PricingReport
		err error
	)
	if h.cache != nil {
		rep, err = cache.GetOrLoad(ctx, h.cache, reportCacheKey, reportCacheTTL, h.orch.Report)
	} else {
		rep, err = h.orch.Report(ctx)
	}
	if err != nil {
		return h.fail(c, "report", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rep)
}

func (h *PricingEchoHandler) Export(c echo.Context) error {
	state, err := h.orch.ExportState(c.Request().Context())
	if err != nil {
		return h.fail(c, "export", err)
	}
	return xhttp.SuccessResponse(c, state)
}
