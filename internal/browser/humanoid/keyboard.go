// internal/browser/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// Type sends text one character at a time. Characters inside a word are
// typed in a faster burst; whitespace is followed by a longer word pause.
// Every rune of text is sent exactly once, in order, with no simulated typos,
// so the target receives the content verbatim.
func (h *Humanoid) Type(ctx context.Context, text string) error {
	if !h.cfg.Enabled {
		return h.executor.SendKeys(ctx, text)
	}

	runes := []rune(text)
	for i, r := range runes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := h.interKeyPause(ctx, runes[i-1]); err != nil {
				return err
			}
		}
		if err := h.executor.SendKeys(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", r, err)
		}
		if err := h.executor.Sleep(ctx, h.keyHold()); err != nil {
			return err
		}
	}
	h.logger.Debug("Typed text", zap.Int("runes", len(runes)))
	return nil
}

// interKeyPause waits before the next key; prev is the key just typed.
func (h *Humanoid) interKeyPause(ctx context.Context, prev rune) error {
	mean := h.cfg.KeyPauseMeanMs * h.cfg.BurstFactor
	if unicode.IsSpace(prev) {
		mean = h.cfg.KeyPauseMeanMs + h.cfg.WordPauseMeanMs
	}
	return h.executor.Sleep(ctx, h.sample(mean, h.cfg.KeyPauseStdDevMs, h.cfg.KeyPauseMinMs))
}

// keyHold is the dwell time of a single key press.
func (h *Humanoid) keyHold() time.Duration {
	return h.sample(h.cfg.KeyHoldMeanMs, h.cfg.KeyHoldStdDevMs, 0)
}
