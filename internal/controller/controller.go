package controller

import (
	"errors"
	"strings"

	"review-metrics-service/internal/model"
	"review-metrics-service/internal/repository"
	"review-metrics-service/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

type MetricsController interface {
	ListMetrics(c *fiber.Ctx) error
	GetMetric(c *fiber.Ctx) error
}

// metricsController exposes HTTP handlers for the metric registry.
type metricsController struct {
	metricsService service.MetricsService
	defaultIndex   string
	logger         *zap.Logger
}

// NewMetricsController builds a MetricsController. Requests without an index
// query defaultIndex.
func NewMetricsController(svc service.MetricsService, defaultIndex string, logger *zap.Logger) MetricsController {
	return &metricsController{
		metricsService: svc,
		defaultIndex:   defaultIndex,
		logger:         logger.Named("http"),
	}
}

// ListMetrics returns the names of the available metrics.
func (h *metricsController) ListMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"metrics": service.Names()})
}

// GetMetric computes one metric for a repository.
func (h *metricsController) GetMetric(c *fiber.Ctx) error {
	name := c.Params("name")
	metric, ok := service.Lookup(name)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown metric "+name)
	}

	repositoryFullname := utils.Trim(c.Query("repository"), ' ')
	if repositoryFullname == "" {
		return fiber.NewError(fiber.StatusBadRequest, "repository is required")
	}
	index := utils.Trim(c.Query("index", h.defaultIndex), ' ')

	params, err := buildParams(c)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return fiber.NewError(fiber.StatusBadRequest, verr.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to parse parameters")
	}

	outcome := metric(c.UserContext(), h.metricsService, index, repositoryFullname, params)
	if outcome.OutcomeStatus() == model.StatusBackendFailure {
		h.logger.Debug("metric failed", zap.String("metric", name), zap.String("repository", repositoryFullname))
		status := fiber.StatusBadGateway
		if errors.Is(outcome.OutcomeError(), repository.ErrUnknownIndex) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(outcome)
	}
	return c.JSON(outcome)
}

func buildParams(c *fiber.Ctx) (model.Params, error) {
	values := make(map[string]string)
	for key, raw := range c.Queries() {
		key = strings.ToLower(key)
		for _, known := range model.ParamKeys {
			if key == known {
				values[key] = raw
				break
			}
		}
	}
	return model.ParseParams(values)
}
