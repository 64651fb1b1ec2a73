// internal/inject/options.go
package inject

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"go.uber.org/zap"
)

// OptionRequest selects an item from a dropdown-like list.
type OptionRequest struct {
	Trigger locator.Handle
	// Option is a template descriptor; it is bound to Name, then Default.
	Option  locator.Descriptor
	Name    string
	Default string
}

// OptionOutcome reports which item ended up selected.
type OptionOutcome struct {
	Selected     string
	UsedDefault  bool
	StrategyUsed int
}

// SelectOption opens the list, clicks the item named req.Name and falls back
// to req.Default. When neither exists the list is dismissed with Escape and
// a soft injection failure is returned.
func (in *Injector) SelectOption(ctx context.Context, req OptionRequest) (OptionOutcome, error) {
	out := OptionOutcome{StrategyUsed: -1}
	if in.locator == nil {
		return out, schemas.Errorf(schemas.KindInjection, "select option", "no locator configured")
	}

	if err := in.focus(ctx, req.Trigger); err != nil {
		return out, classify("open option list", err)
	}

	candidates := []string{req.Name}
	if req.Default != "" && req.Default != req.Name {
		candidates = append(candidates, req.Default)
	}

	for i, name := range candidates {
		res, err := in.locator.Locate(ctx, req.Option.Bind(name))
		if err != nil {
			return out, err
		}
		if !res.Found {
			if i == 0 && len(candidates) > 1 {
				in.logger.Warn("Option not found, trying default.",
					zap.String("option", name),
					zap.String("default", req.Default))
			}
			continue
		}
		if err := in.driver.Click(ctx, *res.Handle); err != nil {
			return out, classify("click option", err)
		}
		out.Selected = name
		out.UsedDefault = i > 0
		out.StrategyUsed = res.StrategyUsed
		in.logger.Info("Option selected.", zap.String("option", name), zap.Bool("default", out.UsedDefault))
		return out, in.driver.Sleep(ctx, in.settle)
	}

	if err := in.keys(ctx, "Escape"); err != nil {
		return out, classify("dismiss option list", err)
	}
	return out, schemas.NewError(schemas.KindInjection, "select option",
		fmt.Errorf("neither %q nor default %q is in the list", req.Name, req.Default))
}
