// Package forecast wraps the external forecasting collaborators and the
// deterministic projection used when none of them can answer.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/ports"
)

var (
	// ErrUnavailable means the collaborator could not be reached or read.
	ErrUnavailable = errors.New("forecaster unavailable")
	// ErrNoProjection means the collaborator answered without usable values.
	ErrNoProjection = errors.New("no projection")
)

// Projection sources.
const (
	SourceHTTP         = "http"
	SourceModel        = "model"
	SourceModelDefault = "model_default"
	SourceFallback     = "fallback"
)

// DefaultSteps is the step-up applied per horizon month by the fallback.
var DefaultSteps = []float64{0.05, 0.05, 0.05}

// Fallback projects volume·(1+step) for each configured step.
type Fallback struct {
	steps []float64
}

// NewFallback copies steps; an empty list selects DefaultSteps.
func NewFallback(steps []float64) Fallback {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	return Fallback{steps: append([]float64(nil), steps...)}
}

// Project never fails.
func (f Fallback) Project(volume float64) domain.Projection {
	steps := f.steps
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	values := make([]float64, len(steps))
	for i, step := range steps {
		values[i] = volume * (1 + step)
	}
	return domain.Projection{
		Values:   values,
		Accuracy: 0,
		Trend:    domain.TrendUnknown,
		Source:   SourceFallback,
	}
}

// Trend labels a projection UPWARD when it ends above where it starts.
func Trend(values []float64) string {
	if len(values) == 0 {
		return domain.TrendUnknown
	}
	if values[len(values)-1] > values[0] {
		return domain.TrendUpward
	}
	return domain.TrendStable
}

// Chain asks each forecaster in turn and falls back to a deterministic
// projection, recording why every collaborator was skipped.
type Chain struct {
	forecasters []ports.Forecaster
	fallback    Fallback
	logger      *slog.Logger
}

var _ ports.Forecaster = (*Chain)(nil)

// NewChain builds a chain; nil forecasters are ignored.
func NewChain(fallback Fallback, log *slog.Logger, forecasters ...ports.Forecaster) *Chain {
	c := &Chain{fallback: fallback, logger: log}
	for _, f := range forecasters {
		if f != nil {
			c.forecasters = append(c.forecasters, f)
		}
	}
	return c
}

// Forecast returns the first successful projection. It only fails when ctx is
// done; collaborator failures end in the fallback with FailureReason set.
func (c *Chain) Forecast(ctx context.Context, region string, volume float64) (domain.Projection, error) {
	if err := ctx.Err(); err != nil {
		return domain.Projection{}, err
	}
	var reasons []string
	for i, f := range c.forecasters {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return domain.Projection{}, err
			}
		}
		projection, err := f.Forecast(ctx, region, volume)
		if err == nil && len(projection.Values) > 0 {
			if projection.Trend == "" {
				projection.Trend = Trend(projection.Values)
			}
			return projection, nil
		}
		if err == nil {
			err = ErrNoProjection
		}
		reasons = append(reasons, fmt.Sprintf("#%d: %v", i, err))
		if c.logger != nil {
			c.logger.Debug("forecaster skipped", "region", region, "position", i, "error", err)
		}
	}

	projection := c.fallback.Project(volume)
	if len(reasons) > 0 {
		projection.FailureReason = strings.Join(reasons, "; ")
		if c.logger != nil {
			c.logger.Warn("using fallback projection", "region", region, "reason", projection.FailureReason)
		}
	}
	return projection, nil
}
