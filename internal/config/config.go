// Package config handles engine configuration loading and management.
package config

// Config holds all deformation engine settings.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Muscle  MuscleConfig  `yaml:"muscle"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig holds scheduling settings for the deformation pass.
type EngineConfig struct {
	Workers   int `yaml:"workers"`    // Worker goroutines, 0 = GOMAXPROCS
	BatchSize int `yaml:"batch_size"` // Sample points per parallel chunk
}

// MuscleConfig holds the authoring knobs shared by every muscle group.
type MuscleConfig struct {
	FitThreshold   float32 `yaml:"fit_threshold"`
	FlexThreshold  float32 `yaml:"flex_threshold"`
	BreastPresence float32 `yaml:"breast_presence"` // 0..2
}

// DataConfig holds authoring document paths.
type DataConfig struct {
	AuthoringPaths []string `yaml:"authoring_paths"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:   0,
			BatchSize: 32,
		},
		Muscle: MuscleConfig{
			FitThreshold:   0.35,
			FlexThreshold:  0.5,
			BreastPresence: 1,
		},
		Data: DataConfig{
			AuthoringPaths: nil,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Normalize repairs out-of-range values in place and reports whether anything
// was changed.
func (c *Config) Normalize() bool {
	changed := false
	if c.Engine.Workers < 0 {
		c.Engine.Workers = 0
		changed = true
	}
	if c.Engine.BatchSize <= 0 {
		c.Engine.BatchSize = 32
		changed = true
	}
	if c.Muscle.FitThreshold <= 0 || c.Muscle.FitThreshold >= 1 {
		c.Muscle.FitThreshold = 0.35
		changed = true
	}
	if c.Muscle.FlexThreshold <= 0 {
		c.Muscle.FlexThreshold = 0.5
		changed = true
	}
	if c.Muscle.BreastPresence < 0 {
		c.Muscle.BreastPresence = 0
		changed = true
	}
	if c.Muscle.BreastPresence > 2 {
		c.Muscle.BreastPresence = 2
		changed = true
	}
	return changed
}
