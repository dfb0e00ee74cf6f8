/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The file holds the model membership tables the classifier is built from.

package capability

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultTablesYAML []byte

// Tables lists the model ids (and id prefixes) that deviate from the default dialect.
type Tables struct {
	NoTemperature       []string `json:"no_temperature" yaml:"no_temperature"`
	MaxCompletionTokens []string `json:"max_completion_tokens" yaml:"max_completion_tokens"`
	MaxOutputTokens     []string `json:"max_output_tokens" yaml:"max_output_tokens"`
	ReasoningPrefixes   []string `json:"reasoning_prefixes" yaml:"reasoning_prefixes"`
	ReasoningModels     []string `json:"reasoning_models" yaml:"reasoning_models"`
}

// DefaultTables returns the tables shipped with the binary.
func DefaultTables() Tables {
	tables, err := ParseTables(defaultTablesYAML)
	if err != nil {
		// models.yaml is compiled in, a parse failure is a build defect
		panic(fmt.Sprintf("invalid embedded capability tables: %v", err))
	}
	return tables
}

// ParseTables decodes capability tables from YAML.
func ParseTables(data []byte) (Tables, error) {
	var tables Tables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return Tables{}, fmt.Errorf("failed to parse capability tables: %w", err)
	}
	return tables, nil
}

// LoadTablesFromYAML reads capability tables from a YAML file.
func LoadTablesFromYAML(filePath string) (Tables, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read capability tables %s: %w", filePath, err)
	}
	return ParseTables(data)
}
