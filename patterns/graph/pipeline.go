package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/core/extract"
	"github.com/leofalp/mule/patterns/mules"
)

// Pipeline is the YAML form of a graph.
//
//	name: einstein-newton
//	model: phi4-mini
//	timeout: 5m
//	output: charles
//	agents:
//	  - id: eve
//	    instruction: who was albert einstein?
//	  - id: charles
//	    kind: thinker
//	    instruction: who made bigger contributions?
//	    depends_on:
//	      prior1: eve
type Pipeline struct {
	Name    string          `yaml:"name"`
	Model   string          `yaml:"model"`
	Timeout time.Duration   `yaml:"timeout"`
	Output  string          `yaml:"output"`
	Agents  []PipelineAgent `yaml:"agents"`
}

// PipelineAgent is one node of a Pipeline.
type PipelineAgent struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction"`

	Topics      string   `yaml:"topics"`
	Results     int      `yaml:"results"`
	AllowedTags []string `yaml:"allowed_tags"`

	// OutputSchema is a JSON schema written as YAML.
	OutputSchema map[string]any `yaml:"output_schema"`

	Timeout time.Duration `yaml:"timeout"`

	// DependsOn maps dependency names to upstream agent IDs.
	DependsOn map[string]string `yaml:"depends_on"`
}

// LoadPipeline reads and parses a pipeline file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read pipeline: %w", err)
	}
	return ParsePipeline(data)
}

// ParsePipeline parses a pipeline document.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("graph: parse pipeline: %w", err)
	}
	if len(p.Agents) == 0 {
		return nil, fmt.Errorf("graph: pipeline %q has no agents", p.Name)
	}
	return &p, nil
}

// Build turns the pipeline into a Graph. defaultModel is used for agents
// that name no model when the pipeline names none either. Cycles are
// reported as ErrCycle before anything runs.
func (p *Pipeline) Build(defaultModel string, opts ...Option) (*Graph, error) {
	model := p.Model
	if model == "" {
		model = defaultModel
	}

	graphOpts := []Option{WithExecutionTimeout(p.Timeout)}
	if p.Output != "" {
		graphOpts = append(graphOpts, WithOutputNode(p.Output))
	}
	builder := NewBuilder(append(graphOpts, opts...)...)

	for _, spec := range p.Agents {
		a, body, err := spec.agent(model)
		if err != nil {
			return nil, err
		}
		builder.AddNode(spec.ID, a, body, WithNodeTimeout(spec.Timeout))
	}

	for _, spec := range p.Agents {
		names := make([]string, 0, len(spec.DependsOn))
		for name := range spec.DependsOn {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			builder.AddEdge(spec.DependsOn[name], spec.ID, WithDependencyName(name))
		}
	}

	return builder.Build()
}

func (spec PipelineAgent) agent(model string) (*agent.Agent, agent.Body, error) {
	body, err := mules.Lookup(spec.Kind)
	if err != nil {
		return nil, nil, fmt.Errorf("graph: agent %q: %w", spec.ID, err)
	}

	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	if spec.Model != "" {
		model = spec.Model
	}

	a := agent.New(name, model, spec.Instruction).WithTopics(spec.Topics, spec.Results)
	if len(spec.AllowedTags) > 0 {
		a.WithAllowedTags(extract.NewTagSet(spec.AllowedTags...))
	}

	switch {
	case len(spec.OutputSchema) > 0:
		schema, err := json.Marshal(spec.OutputSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("graph: agent %q: output schema: %w", spec.ID, err)
		}
		a.WithOutputSchema(schema)
	case strings.EqualFold(strings.TrimSpace(spec.Kind), mules.KindClassifier):
		a.WithOutputSchema(mules.VerdictSchema)
	}

	return a, body, nil
}
