// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/postpilot/internal/config"
	"go.uber.org/zap"
)

// Executor is the low-level surface the typist drives.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	SendKeys(ctx context.Context, keys string) error
}

// Humanoid paces keystrokes the way a person types.
type Humanoid struct {
	// mu guards rng; rand.Rand is not safe for concurrent use.
	mu       sync.Mutex
	cfg      config.HumanoidConfig
	rng      *rand.Rand
	executor Executor
	logger   *zap.Logger
}

// New creates a Humanoid seeded from the clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor) *Humanoid {
	return newWithRand(cfg, logger, executor, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewTestHumanoid returns a deterministic instance with default timings.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	cfg := config.NewDefaultConfig().Humanoid
	return newWithRand(cfg, zap.NewNop(), executor, rand.New(rand.NewSource(seed)))
}

func newWithRand(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor, rng *rand.Rand) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BurstFactor <= 0 {
		cfg.BurstFactor = 1
	}
	return &Humanoid{
		cfg:      cfg,
		rng:      rng,
		executor: executor,
		logger:   logger.Named("humanoid"),
	}
}

// sample draws from N(mean, stdDev) clamped at min.
func (h *Humanoid) sample(mean, stdDev, min float64) time.Duration {
	h.mu.Lock()
	n := h.rng.NormFloat64()
	h.mu.Unlock()

	ms := mean + n*stdDev
	if ms < min {
		ms = min
	}
	return time.Duration(ms * float64(time.Millisecond))
}
