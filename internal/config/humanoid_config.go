// File: internal/config/humanoid_config.go
// Tunables of the keystroke simulation used when the body is typed character
// by character. Times are milliseconds; every sampled delay is drawn from a
// normal distribution and clamped at its minimum.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// HumanoidConfig shapes the timing of simulated typing.
type HumanoidConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	KeyHoldMeanMs    float64 `mapstructure:"key_hold_mean_ms" yaml:"key_hold_mean_ms"`
	KeyHoldStdDevMs  float64 `mapstructure:"key_hold_std_dev_ms" yaml:"key_hold_std_dev_ms"`
	KeyPauseMeanMs   float64 `mapstructure:"key_pause_mean_ms" yaml:"key_pause_mean_ms"`
	KeyPauseStdDevMs float64 `mapstructure:"key_pause_std_dev_ms" yaml:"key_pause_std_dev_ms"`
	KeyPauseMinMs    float64 `mapstructure:"key_pause_min_ms" yaml:"key_pause_min_ms"`
	// WordPauseMeanMs is added after whitespace, modelling the short planning
	// pause between words.
	WordPauseMeanMs float64 `mapstructure:"word_pause_mean_ms" yaml:"word_pause_mean_ms"`
	// BurstFactor scales intra-word pauses; below 1 types words faster.
	BurstFactor float64 `mapstructure:"burst_factor" yaml:"burst_factor"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.key_hold_mean_ms", 12.0)
	v.SetDefault("humanoid.key_hold_std_dev_ms", 4.0)
	v.SetDefault("humanoid.key_pause_mean_ms", 20.0)
	v.SetDefault("humanoid.key_pause_std_dev_ms", 8.0)
	v.SetDefault("humanoid.key_pause_min_ms", 5.0)
	v.SetDefault("humanoid.word_pause_mean_ms", 40.0)
	v.SetDefault("humanoid.burst_factor", 0.8)
}

// Validate rejects negative timings.
func (h HumanoidConfig) Validate() error {
	for name, val := range map[string]float64{
		"key_hold_mean_ms":     h.KeyHoldMeanMs,
		"key_hold_std_dev_ms":  h.KeyHoldStdDevMs,
		"key_pause_mean_ms":    h.KeyPauseMeanMs,
		"key_pause_std_dev_ms": h.KeyPauseStdDevMs,
		"key_pause_min_ms":     h.KeyPauseMinMs,
		"word_pause_mean_ms":   h.WordPauseMeanMs,
	} {
		if val < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if h.BurstFactor <= 0 {
		return fmt.Errorf("burst_factor must be positive")
	}
	return nil
}
