package darkmix

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything needed to build and run the engine. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	SampleRate int
	Tempo      Tempo
	Seed       uint64
	Intensity  float64
	MasterGain float64
	Limiter    float64 // peak ceiling of the mix bus, linear

	Lookahead    time.Duration
	PollInterval time.Duration
	RampTime     time.Duration // default ramp of effect parameter changes

	// SpeechDelayBars is how many bars after start the speech track plays.
	SpeechDelayBars int

	Voices   Patch
	Effects  []StageConfig
	Ambience []AmbienceTrack
}

const (
	MinRampTime = 20 * time.Millisecond
	MaxRampTime = 50 * time.Millisecond
)

//go:embed presets/default.yml
var defaultConfigData []byte

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	var c Config
	if err := yaml.Unmarshal(defaultConfigData, &c); err != nil {
		panic(fmt.Errorf("embedded default config: %w", err))
	}
	return c
}

// ParseConfig parses YAML on top of the defaults: keys missing from data keep
// their default values. Lists (voices, effects, ambience) are replaced as a
// whole.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, InitializationError(fmt.Errorf("%w: %w", ErrInvalidConfig, err), "could not parse config")
	}
	return c, nil
}

// LoadConfig reads a YAML config file (or the defaults, if path is empty),
// applies the DARKMIX_* environment overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, InitializationError(err, "could not read config file")
		}
		if c, err = ParseConfig(data); err != nil {
			return Config{}, err
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return Config{}, InitializationError(err, "invalid config")
	}
	return c, nil
}

// ApplyEnv overrides config values from environment variables. Values that
// do not parse are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DARKMIX_TEMPO"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tempo = Tempo(val)
		}
	}
	if v := os.Getenv("DARKMIX_SEED"); v != "" {
		if val, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Seed = val
		}
	}
	if v := os.Getenv("DARKMIX_INTENSITY"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			c.Intensity = Clamp(val, 0, 1)
		}
	}
	// 0-100 converted to 0.0-1.0
	if v := os.Getenv("DARKMIX_MASTER_VOLUME"); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			c.MasterGain = Clamp(float64(val)/100, 0, 1)
		}
	}
	if v := os.Getenv("DARKMIX_SAMPLE_RATE"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			c.SampleRate = val
		}
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < 22050 || c.SampleRate > 96000 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	}
	if err := c.Tempo.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.PollInterval <= 0 || c.Lookahead <= c.PollInterval {
		return fmt.Errorf("%w: lookahead %v must exceed poll interval %v", ErrInvalidConfig, c.Lookahead, c.PollInterval)
	}
	if c.RampTime < MinRampTime || c.RampTime > MaxRampTime {
		return fmt.Errorf("%w: ramp time %v outside %v..%v", ErrInvalidConfig, c.RampTime, MinRampTime, MaxRampTime)
	}
	if c.MasterGain < 0 || c.MasterGain > 1 {
		return fmt.Errorf("%w: master gain %v", ErrInvalidConfig, c.MasterGain)
	}
	if c.Limiter <= 0 || c.Limiter > 1 {
		return fmt.Errorf("%w: limiter ceiling %v", ErrInvalidConfig, c.Limiter)
	}
	if c.SpeechDelayBars < 0 {
		return fmt.Errorf("%w: speech delay %d bars", ErrInvalidConfig, c.SpeechDelayBars)
	}
	if err := c.Voices.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(c.Effects) != len(StageOrder) {
		return fmt.Errorf("%w: effects chain needs %d stages, got %d", ErrInvalidConfig, len(StageOrder), len(c.Effects))
	}
	for i, s := range c.Effects {
		if s.Type != StageOrder[i] {
			return fmt.Errorf("%w: effect stage %d is %q, expected %q", ErrInvalidConfig, i, s.Type, StageOrder[i])
		}
	}
	names := make(map[string]bool, len(c.Ambience))
	for _, t := range c.Ambience {
		if t.Name == "" || names[t.Name] {
			return fmt.Errorf("%w: ambience track name %q empty or duplicate", ErrInvalidConfig, t.Name)
		}
		if t.LoopStart < 0 || (t.LoopEnd != 0 && t.LoopEnd <= t.LoopStart) {
			return fmt.Errorf("%w: ambience track %s loop points %d..%d", ErrInvalidConfig, t.Name, t.LoopStart, t.LoopEnd)
		}
		names[t.Name] = true
	}
	return nil
}

// Track returns the ambience track config with the given name.
func (c *Config) Track(name string) (AmbienceTrack, bool) {
	for _, t := range c.Ambience {
		if t.Name == name {
			return t, true
		}
	}
	return AmbienceTrack{}, false
}
