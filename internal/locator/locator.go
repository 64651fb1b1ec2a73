// internal/locator/locator.go
package locator

import (
	"context"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"go.uber.org/zap"
)

// Candidate is one element a strategy resolved, tagged by the page so that
// later operations in the same step can find it again.
type Candidate struct {
	Ref     string
	Box     schemas.ElementGeometry
	Visible bool
	// Point is set for coordinate strategies.
	Point *Point
}

// Point is a position in top-level viewport coordinates.
type Point struct {
	X, Y float64
}

// Handle is a non-owning reference to a located target. It is only valid for
// the automation step that produced it; the page may re-render at any time.
type Handle struct {
	Role  schemas.Role
	Frame FrameScope
	Ref   string
	Box   schemas.ElementGeometry
	Point *Point
}

// IsPoint reports whether the handle addresses a coordinate instead of an
// element.
func (h Handle) IsPoint() bool { return h.Point != nil }

// Result is the outcome of Locate. StrategyUsed is -1 when nothing was found.
type Result struct {
	Found        bool
	Handle       *Handle
	StrategyUsed int
}

// Page resolves the candidates of a single strategy against the live page.
type Page interface {
	Candidates(ctx context.Context, s Strategy) ([]Candidate, error)
}

// Locator walks strategy chains against a Page.
type Locator struct {
	page   Page
	logger *zap.Logger
}

// New creates a Locator.
func New(page Page, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{page: page, logger: logger.Named("locator")}
}

// Locate tries the strategies of d in order and returns the first candidate
// that passes the strategy's validity predicate. Lower priority strategies are
// not evaluated once a match is found. A strategy that errors counts as
// having no candidates; only transport failures and cancellation are
// returned as errors.
func (l *Locator) Locate(ctx context.Context, d Descriptor) (Result, error) {
	for i, s := range d.Strategies {
		if err := ctx.Err(); err != nil {
			return Result{StrategyUsed: -1}, err
		}

		candidates, err := l.page.Candidates(ctx, s)
		if err != nil {
			if schemas.KindOf(err) == schemas.KindTransport {
				return Result{StrategyUsed: -1}, err
			}
			if ctx.Err() != nil {
				return Result{StrategyUsed: -1}, ctx.Err()
			}
			l.logger.Debug("Strategy failed, trying next.",
				zap.Stringer("target", d),
				zap.Int("strategy", i),
				zap.Stringer("kind", s),
				zap.Error(err))
			continue
		}

		for _, c := range candidates {
			if !s.Validity.Accept(c) {
				continue
			}
			l.logger.Debug("Target located.",
				zap.Stringer("target", d),
				zap.Int("strategy", i),
				zap.Stringer("kind", s))
			return Result{
				Found: true,
				Handle: &Handle{
					Role:  d.Role,
					Frame: s.Frame,
					Ref:   c.Ref,
					Box:   c.Box,
					Point: c.Point,
				},
				StrategyUsed: i,
			}, nil
		}
		if len(candidates) > 0 {
			l.logger.Debug("All candidates rejected by validity predicate.",
				zap.Stringer("target", d),
				zap.Int("strategy", i),
				zap.Int("candidates", len(candidates)))
		}
	}

	l.logger.Info("Target not found by any strategy.",
		zap.Stringer("target", d),
		zap.Int("strategies", len(d.Strategies)))
	return Result{StrategyUsed: -1}, nil
}
