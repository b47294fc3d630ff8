// Package graph declares and runs phased execution graphs: ordered phases
// of named tasks, each phase run sequentially or in parallel.
package graph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode is how a phase runs its tasks.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// AllPrior is the dependency wildcard meaning every task of earlier phases.
const AllPrior = "*"

// TaskSpec declares one task.
type TaskSpec struct {
	Name string `yaml:"name" json:"name"`
	// Uses is the registry key; defaults to Name.
	Uses      string         `yaml:"uses,omitempty" json:"uses,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// PhaseSpec declares one phase.
type PhaseSpec struct {
	Name  string     `yaml:"name" json:"name"`
	Mode  Mode       `yaml:"mode" json:"mode"`
	Tasks []TaskSpec `yaml:"tasks" json:"tasks"`
}

// Spec is a declarative execution graph.
type Spec struct {
	Name   string      `yaml:"name" json:"name"`
	Phases []PhaseSpec `yaml:"phases" json:"phases"`
}

// ParseSpec decodes a YAML graph.
func ParseSpec(r io.Reader) (*Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &s, nil
}

// LoadSpec reads a YAML graph from path.
func LoadSpec(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSpec(f)
}
