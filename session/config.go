package session

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// Config holds the session parameters kept outside of code: variant
// selectors, blending weights, grid geometry, goal definitions, and the
// predictor hyperparameters as a key/val list.
type Config struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperParams"`
	// Predictor selects the inference variant, e.g. {kind: bayesian}.
	Predictor map[string]string `yaml:"predictor"`
	// Arbitration selects the blend strategy, e.g. {strategy: linear}.
	Arbitration map[string]string `yaml:"arbitration"`
	// Assistance selects the recommendation mode, e.g. {mode: argmax}.
	Assistance map[string]string `yaml:"assistance"`
	// Grid is the shared discretization geometry.
	Grid GridConfig `yaml:"grid"`
	// Goals defines the candidate goal cells used when synthesizing
	// tables; ignored when TableFile is set.
	Goals []GoalConfig `yaml:"goals"`
	// TableFile optionally points at a precomputed goal-table file.
	TableFile string `yaml:"tableFile"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

type GridConfig struct {
	Cells  int     `yaml:"cells"`
	Extent float64 `yaml:"extent"`
}

type GoalConfig struct {
	Name string `yaml:"name"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

// HyperParamOrDefault returns the named hyperparameter, or defaultVal
// when the config does not set it.
func (cfg *Config) HyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// selector reads a single-key selector map, falling back when unset.
func (cfg *Config) selector(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return fallback
}

// FromYaml loads a session config. The file carries a kind/def envelope;
// the inner definition is re-marshaled through yaml into the typed
// config.
func FromYaml(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	outerConfig := &OuterConfig{}
	if err := vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if outerConfig.Kind != "sessionConfig" {
		return nil, fmt.Errorf("session config: unexpected kind %q", outerConfig.Kind)
	}

	spec, err := yaml.Marshal(outerConfig.Def)
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	innerConfig := &Config{}
	if err := yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	return innerConfig, nil
}
