package pricing

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var defaultTable []byte

// Direction distinguishes prompt and completion prices
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Price is USD per 1000 tokens
type Price struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps model names to prices
type Table struct {
	Models map[string]Price `yaml:"models"`
}

// CostLookupError is returned for a model missing from the table.
// It is fatal for the call that asked, nothing else.
type CostLookupError struct {
	Model string
}

func (e *CostLookupError) Error() string {
	return fmt.Sprintf("no pricing for model %q", e.Model)
}

// Default returns the embedded price table
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded pricing table: %v", err))
	}
	return t
}

// Load reads a YAML table from path, or the embedded one when path is empty
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML table
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse pricing table: %w", err)
	}
	if len(t.Models) == 0 {
		return nil, fmt.Errorf("pricing table has no models")
	}
	return &t, nil
}

// PricePer1K returns the price for one direction of a model
func (t *Table) PricePer1K(model string, dir Direction) (float64, error) {
	p, ok := t.Models[strings.ToLower(model)]
	if !ok {
		return 0, &CostLookupError{Model: model}
	}
	if dir == Output {
		return p.Output, nil
	}
	return p.Input, nil
}

// Cost returns the USD cost of one call
func (t *Table) Cost(model string, promptTokens, completionTokens int) (float64, error) {
	in, err := t.PricePer1K(model, Input)
	if err != nil {
		return 0, err
	}
	out, err := t.PricePer1K(model, Output)
	if err != nil {
		return 0, err
	}
	return float64(promptTokens)/1000*in + float64(completionTokens)/1000*out, nil
}

// Names lists the priced model names in order
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Models))
	for name := range t.Models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
