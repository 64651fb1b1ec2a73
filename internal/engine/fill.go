// internal/engine/fill.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/diagnostics"
	"github.com/xkilldash9x/postpilot/internal/document"
	"github.com/xkilldash9x/postpilot/internal/inject"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"github.com/xkilldash9x/postpilot/internal/platform"
)

// fill writes every field of doc in profile order, then verifies the text
// fields. Each field is independent: a failure is recorded and the next one
// is attempted.
func (e *Engine) fill(ctx context.Context, doc document.ParsedDocument, st *runState) error {
	var toVerify []diagnostics.Filled
	var verifyIdx []int

	for _, f := range e.profile.Fields(doc.HasCategory(), len(doc.Tags) > 0) {
		log := st.logger.With(zap.String("role", string(f.Role)))
		out, err := e.fillField(ctx, f, doc, log)
		if err != nil {
			return err
		}
		st.report.Outcomes = append(st.report.Outcomes, out)

		if out.Succeeded && (f.Role == schemas.RoleTitleField || f.Role == schemas.RoleBodyEditor) {
			expected := doc.Title
			if f.Role == schemas.RoleBodyEditor {
				expected = doc.Body
				if f.Technique == inject.TechniqueScriptEditor {
					// The editor holds the rendered paragraphs, not the raw body.
					expected = document.PlainText(document.RenderParagraphs(doc.Body))
				}
			}
			toVerify = append(toVerify, diagnostics.Filled{Outcome: out, Target: f.VerifyDescriptor(), Expected: expected})
			verifyIdx = append(verifyIdx, len(st.report.Outcomes)-1)
		}
	}

	// Document fields the platform has no control for.
	if doc.HasCategory() && !e.profile.Supports(schemas.RoleCategoryTrigger) {
		st.report.Outcomes = append(st.report.Outcomes, unsupported(schemas.RoleCategoryTrigger, e.profile.Name))
		st.logger.Warn("Category ignored; the platform editor has no category control.", zap.String("category", *doc.Category))
	}
	if len(doc.Tags) > 0 && !e.profile.Supports(schemas.RoleTagInput) {
		st.report.Outcomes = append(st.report.Outcomes, unsupported(schemas.RoleTagInput, e.profile.Name))
		st.logger.Warn("Tags ignored; the platform editor has no tag input.", zap.Strings("tags", doc.Tags))
	}

	if len(toVerify) == 0 {
		return ctx.Err()
	}
	if err := e.browser.Sleep(ctx, e.cfg.Publish.SettleDelay); err != nil {
		return fatal("settle", err)
	}
	for i, o := range e.verifier.Verify(ctx, toVerify) {
		st.report.Outcomes[verifyIdx[i]] = o
	}
	return ctx.Err()
}

func unsupported(role schemas.Role, platformName string) schemas.FillOutcome {
	return schemas.FillOutcome{
		Role:         role,
		StrategyUsed: -1,
		Warning:      fmt.Sprintf("%s has no control for %s", platformName, role),
	}
}

// fillField locates and writes one field. An injection failure is retried
// once against a freshly located handle. The returned error is always fatal.
func (e *Engine) fillField(ctx context.Context, f platform.Field, doc document.ParsedDocument, log *zap.Logger) (schemas.FillOutcome, error) {
	out := schemas.FillOutcome{Role: f.Role, Attempted: true, StrategyUsed: -1, Technique: string(f.Technique)}

	if err := platform.RunSteps(ctx, e.browser, f.Before, log); err != nil {
		return out, err
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := e.locate(ctx, f.Target, f)
		if err != nil {
			return out, err
		}
		if !res.Found {
			out.StrategyUsed = -1
			out.Warning = fmt.Sprintf("locate failure: %s not found by any strategy", f.Target)
			log.Warn("Target not found; fill this field manually.")
			return out, nil
		}
		out.StrategyUsed = res.StrategyUsed

		warning, err := e.write(ctx, f, *res.Handle, doc)
		if err == nil {
			// A default category fallback is not the requested value.
			out.Succeeded = warning == ""
			out.Warning = warning
			log.Info("Field filled.", zap.Int("strategy", res.StrategyUsed), zap.Int("attempt", attempt))
			return out, nil
		}
		if isFatal(err) {
			return out, err
		}
		if warning != "" {
			// The option list fell through to nothing; reopening will not help.
			out.Warning = warning
			return out, nil
		}
		lastErr = err
		log.Warn("Write failed.", zap.Int("attempt", attempt), zap.Error(err))
	}

	out.Warning = fmt.Sprintf("injection failure: %v", lastErr)
	return out, nil
}

// locate polls the descriptor until it is found or the field's wait budget
// is spent.
func (e *Engine) locate(ctx context.Context, d locator.Descriptor, f platform.Field) (locator.Result, error) {
	attempts := 1 + int(f.Wait/locatePoll)
	for i := 0; ; i++ {
		res, err := e.locator.Locate(ctx, d)
		if err != nil || res.Found || i+1 >= attempts {
			return res, err
		}
		if err := e.browser.Sleep(ctx, locatePoll); err != nil {
			return res, err
		}
	}
}

// write dispatches one field to the injector. For option lists a non-empty
// warning with a nil error means the default was used, and a non-empty
// warning with an error means nothing could be selected.
func (e *Engine) write(ctx context.Context, f platform.Field, h locator.Handle, doc document.ParsedDocument) (string, error) {
	input := f.Input
	if input == "" {
		input = inject.InputMethod(e.cfg.Publish.InputMethod)
	}
	req := inject.Request{Handle: h, Mode: f.Mode, Technique: f.Technique, Input: input, EditorID: f.EditorID}

	switch f.Technique {
	case inject.TechniqueOptionList:
		if doc.Category == nil {
			return "", nil
		}
		sel, err := e.injector.SelectOption(ctx, inject.OptionRequest{
			Trigger: h,
			Option:  f.Option,
			Name:    *doc.Category,
			Default: e.profile.DefaultCategory,
		})
		if err != nil {
			if isFatal(err) {
				return "", err
			}
			return fmt.Sprintf("category %q could not be selected: %v", *doc.Category, err), err
		}
		if sel.UsedDefault {
			return fmt.Sprintf("category %q not found, default %q selected", *doc.Category, sel.Selected), nil
		}
		return "", nil
	case inject.TechniqueTagInput:
		req.Tokens = doc.Tags
	case inject.TechniqueScriptEditor:
		req.Content = document.RenderParagraphs(doc.Body)
	default:
		if f.Role == schemas.RoleTitleField {
			req.Content = doc.Title
		} else {
			req.Content = doc.Body
		}
	}

	_, err := e.injector.Inject(ctx, req)
	return "", err
}
