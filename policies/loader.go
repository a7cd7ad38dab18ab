package policies

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// The table file shares the outer kind/def envelope used by the session
// config, so a misrouted file fails loudly on the kind check rather than
// decoding into garbage.
type outerTableFile struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

type tableFileDef struct {
	Cells int        `yaml:"cells"`
	Goals []tableDef `yaml:"goals"`
}

type tableDef struct {
	Name   string        `yaml:"name"`
	Values [][][]float64 `yaml:"values"`
}

// LoadFile reads a set of goal tables from a YAML file. Every table in
// the file must cover the same grid; partial tables are rejected by
// NewQTable's shape validation.
func LoadFile(path string) ([]*QTable, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	outer := &outerTableFile{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	if outer.Kind != "goalTables" {
		return nil, fmt.Errorf("load tables: unexpected kind %q", outer.Kind)
	}

	spec, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	def := &tableFileDef{}
	if err := yaml.Unmarshal(spec, def); err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	if len(def.Goals) == 0 {
		return nil, fmt.Errorf("load tables: %q defines no goals", path)
	}

	tables := make([]*QTable, 0, len(def.Goals))
	for _, g := range def.Goals {
		table, err := NewQTable(g.Name, def.Cells, g.Values)
		if err != nil {
			return nil, fmt.Errorf("load tables: %w", err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}
