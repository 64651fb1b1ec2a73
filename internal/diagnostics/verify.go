// internal/diagnostics/verify.go
package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/postpilot/api/schemas"
	"github.com/xkilldash9x/postpilot/internal/locator"
	"go.uber.org/zap"
)

// DefaultMinRatio is used when the verifier is built with a non-positive
// ratio.
const DefaultMinRatio = 0.8

// TextReader reads the visible text or value of a located element.
type TextReader interface {
	ReadText(ctx context.Context, h locator.Handle) (string, error)
}

// Filled pairs an outcome with what was written and where to read it back.
type Filled struct {
	Outcome  schemas.FillOutcome
	Target   locator.Descriptor
	Expected string
}

// Verifier re-reads filled targets after all writes.
type Verifier struct {
	locator  *locator.Locator
	reader   TextReader
	minRatio float64
	logger   *zap.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(loc *locator.Locator, reader TextReader, minRatio float64, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minRatio <= 0 || minRatio > 1 {
		minRatio = DefaultMinRatio
	}
	return &Verifier{locator: loc, reader: reader, minRatio: minRatio, logger: logger.Named("verifier")}
}

// Verify re-locates every successfully filled target and records the length
// of what it now holds. Mismatches only add a warning; they never fail the
// run. Outcomes that were not written are returned unchanged.
func (v *Verifier) Verify(ctx context.Context, filled []Filled) []schemas.FillOutcome {
	out := make([]schemas.FillOutcome, 0, len(filled))
	for _, f := range filled {
		o := f.Outcome
		if !o.Succeeded || ctx.Err() != nil {
			out = append(out, o)
			continue
		}

		text, err := v.read(ctx, f.Target)
		if err != nil {
			o.Warning = joinWarning(o.Warning, fmt.Sprintf("verification skipped: %v", err))
			v.logger.Warn("Could not read back target.", zap.String("role", string(o.Role)), zap.Error(err))
			out = append(out, o)
			continue
		}

		got := collapse(text)
		n := utf8.RuneCountInString(got)
		o.VerifiedLength = &n

		want := utf8.RuneCountInString(collapse(f.Expected))
		switch {
		case n == 0 && want > 0:
			o.Warning = joinWarning(o.Warning, "verification mismatch: target is empty")
		case float64(n) < v.minRatio*float64(want):
			o.Warning = joinWarning(o.Warning,
				fmt.Sprintf("verification mismatch: read %d of %d expected characters", n, want))
		}
		if o.Warning != "" {
			v.logger.Warn("Verification mismatch.",
				zap.String("role", string(o.Role)),
				zap.Int("verified_length", n),
				zap.Int("expected_length", want))
		} else {
			v.logger.Info("Verified.", zap.String("role", string(o.Role)), zap.Int("verified_length", n))
		}
		out = append(out, o)
	}
	return out
}

func (v *Verifier) read(ctx context.Context, d locator.Descriptor) (string, error) {
	res, err := v.locator.Locate(ctx, d)
	if err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%s is no longer on the page", d)
	}
	return v.reader.ReadText(ctx, *res.Handle)
}

// collapse folds every whitespace run into a single space and trims.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinWarning(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "; " + next
}
