// Package config loads TOML run configurations.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"hypersched/internal/humanfile"
	"hypersched/internal/setter"
	"hypersched/internal/storage"
)

const (
	DefaultEpochs        = 10
	DefaultStepsPerEpoch = 10
	DefaultLogDir        = "train_log"
	DefaultDBPath        = "hypersched.db"
)

const (
	KindSchedule    = "schedule"
	KindHuman       = "human"
	KindFunc        = "func"
	KindStatMonitor = "stat_monitor"
)

var ErrInvalid = errors.New("invalid config")

// Config is one run: the variables it trains with and the setters that
// adjust them.
type Config struct {
	RunID         string           `toml:"run_id,omitempty"`
	Epochs        int              `toml:"epochs"`
	StepsPerEpoch int              `toml:"steps_per_epoch"`
	LogDir        string           `toml:"log_dir"`
	Store         string           `toml:"store"`
	DBPath        string           `toml:"db_path"`
	Seed          int64            `toml:"seed"`
	Workload      WorkloadConfig   `toml:"workload"`
	Variables     []VariableConfig `toml:"variables"`
	Setters       []SetterConfig   `toml:"setters"`
}

// WorkloadConfig selects the built-in workload the run trains.
type WorkloadConfig struct {
	Kind      string  `toml:"kind"`
	Dim       int     `toml:"dim,omitempty"`
	Curvature float64 `toml:"curvature,omitempty"`
	Noise     float64 `toml:"noise,omitempty"`
	Start     float64 `toml:"start,omitempty"`
	// LearningRate and Momentum name the variables the workload reads.
	LearningRate string `toml:"learning_rate,omitempty"`
	Momentum     string `toml:"momentum,omitempty"`
}

type VariableConfig struct {
	Name  string  `toml:"name"`
	Value float64 `toml:"value"`
}

type CheckpointConfig struct {
	At    int64   `toml:"at"`
	Value float64 `toml:"value"`
}

// SetterConfig describes one setter. Which fields apply depends on Kind.
type SetterConfig struct {
	Kind  string `toml:"kind"`
	Param string `toml:"param"`

	// schedule
	Schedule  []CheckpointConfig `toml:"schedule,omitempty"`
	Interp    string             `toml:"interp,omitempty"`
	StepBased bool               `toml:"step_based,omitempty"`

	// human
	File string `toml:"file,omitempty"`

	// func and stat_monitor
	Func      string  `toml:"func,omitempty"`
	FuncParam float64 `toml:"func_param,omitempty"`
	FuncEvery int     `toml:"func_every,omitempty"`

	// stat_monitor
	Stat      string  `toml:"stat,omitempty"`
	Threshold float64 `toml:"threshold,omitempty"`
	LastK     int     `toml:"last_k,omitempty"`
	Reverse   bool    `toml:"reverse,omitempty"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, applies defaults and validates the result.
func Parse(data []byte) (Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode renders cfg back to TOML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) ApplyDefaults() {
	if c.Epochs == 0 {
		c.Epochs = DefaultEpochs
	}
	if c.StepsPerEpoch == 0 {
		c.StepsPerEpoch = DefaultStepsPerEpoch
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.Store == "" {
		c.Store = storage.DefaultStoreKind()
	}
	c.Store = storage.NormalizeStoreKind(c.Store)
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.Workload.Kind == "" {
		c.Workload.Kind = "quadratic"
	}
	if c.Workload.LearningRate == "" {
		c.Workload.LearningRate = "learning_rate"
	}
	for i := range c.Setters {
		s := &c.Setters[i]
		s.Kind = NormalizeKind(s.Kind)
		if s.Kind == KindHuman && s.File == "" {
			s.File = humanfile.DefaultFileName
		}
		if s.Kind == KindSchedule {
			s.Interp = setter.NormalizeInterp(s.Interp)
		}
	}
}

func (c Config) Validate() error {
	if c.Epochs < 0 {
		return fmt.Errorf("%w: epochs must be > 0", ErrInvalid)
	}
	if c.StepsPerEpoch < 0 {
		return fmt.Errorf("%w: steps_per_epoch must be > 0", ErrInvalid)
	}
	if c.Store != storage.KindMemory && c.Store != storage.KindSQLite {
		return fmt.Errorf("%w: %v: %s", ErrInvalid, storage.ErrUnsupportedStore, c.Store)
	}
	if c.Workload.Kind != "quadratic" {
		return fmt.Errorf("%w: unsupported workload: %s", ErrInvalid, c.Workload.Kind)
	}

	defined := make(map[string]struct{}, len(c.Variables))
	for i, v := range c.Variables {
		if v.Name == "" {
			return fmt.Errorf("%w: variable name is required at index %d", ErrInvalid, i)
		}
		if _, ok := defined[v.Name]; ok {
			return fmt.Errorf("%w: duplicate variable %s", ErrInvalid, v.Name)
		}
		defined[v.Name] = struct{}{}
	}
	if _, ok := defined[c.Workload.LearningRate]; !ok {
		return fmt.Errorf("%w: workload variable %s is not defined", ErrInvalid, c.Workload.LearningRate)
	}

	for i, s := range c.Setters {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: setter %d: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

func (s SetterConfig) validate() error {
	if s.Param == "" {
		return errors.New("param is required")
	}
	switch s.Kind {
	case KindSchedule:
		if len(s.Schedule) == 0 {
			return errors.New("schedule requires at least one checkpoint")
		}
		if s.Interp != setter.InterpNone && s.Interp != setter.InterpLinear {
			return fmt.Errorf("unsupported interpolation: %s", s.Interp)
		}
	case KindHuman:
	case KindFunc:
		if _, err := setter.EpochFuncFromConfig(s.Func, s.FuncParam, s.FuncEvery); err != nil {
			return err
		}
	case KindStatMonitor:
		if s.Stat == "" {
			return errors.New("stat is required")
		}
		if s.LastK <= 0 {
			return errors.New("last_k must be > 0")
		}
		if s.Threshold < 0 {
			return errors.New("threshold must be >= 0")
		}
		if _, err := setter.ValueFuncFromConfig(s.Func, s.FuncParam); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported setter kind: %s", s.Kind)
	}
	return nil
}

func NormalizeKind(kind string) string {
	switch kind {
	case "schedule", "scheduled":
		return KindSchedule
	case "human", "file":
		return KindHuman
	case "func", "function":
		return KindFunc
	case "stat_monitor", "stat", "monitor":
		return KindStatMonitor
	default:
		return kind
	}
}
