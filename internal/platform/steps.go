// internal/platform/steps.go
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"go.uber.org/zap"
)

// StepKind selects what a Step does.
type StepKind string

const (
	StepKeys       StepKind = "keys"
	StepScript     StepKind = "script"
	StepStyle      StepKind = "style"
	StepClickPoint StepKind = "click-point"
	StepPause      StepKind = "pause"
)

// Step is one page preparation action. Steps are fail-soft: a failing step
// is logged and the sequence continues.
type Step struct {
	Name   string
	Kind   StepKind
	Keys   []string
	Repeat int
	// Pause is waited after the step (after each repetition for keys).
	Pause  time.Duration
	Script string
	CSS    string
	X, Y   float64
}

// Actions is the subset of the browser a step sequence needs.
type Actions interface {
	Press(ctx context.Context, key string) error
	Evaluate(ctx context.Context, script string, res any) error
	AddStyle(ctx context.Context, css string) error
	Click(ctx context.Context, h locator.Handle) error
	Sleep(ctx context.Context, d time.Duration) error
}

// RunSteps executes steps in order. Only transport failures and
// cancellation stop the sequence; they are returned.
func RunSteps(ctx context.Context, a Actions, steps []Step, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range steps {
		err := runStep(ctx, a, s)
		if err == nil {
			logger.Debug("Step done.", zap.String("step", s.Name))
			continue
		}
		if schemas.KindOf(err) == schemas.KindTransport || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}
		logger.Warn("Page step failed, continuing.", zap.String("step", s.Name), zap.Error(err))
	}
	return nil
}

func runStep(ctx context.Context, a Actions, s Step) error {
	switch s.Kind {
	case StepKeys:
		n := s.Repeat
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			for _, k := range s.Keys {
				if err := a.Press(ctx, k); err != nil {
					return err
				}
			}
			if err := a.Sleep(ctx, s.Pause); err != nil {
				return err
			}
		}
		return nil
	case StepScript:
		if err := a.Evaluate(ctx, s.Script, nil); err != nil {
			return err
		}
	case StepStyle:
		if err := a.AddStyle(ctx, s.CSS); err != nil {
			return err
		}
	case StepClickPoint:
		if err := a.Click(ctx, locator.Handle{Point: &locator.Point{X: s.X, Y: s.Y}}); err != nil {
			return err
		}
	case StepPause:
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return a.Sleep(ctx, s.Pause)
}
