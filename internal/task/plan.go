package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// PlanPhase is an optional phase declaration in the plan document.
type PlanPhase struct {
	Number int    `yaml:"number"`
	Name   string `yaml:"name,omitempty"`
}

// Plan is the on-disk plan document: an ordered list of task records plus
// optional metadata. The structured shape is the contract, not the syntax;
// YAML is simply the codec this tool reads.
type Plan struct {
	Name   string      `yaml:"name,omitempty"`
	Phases []PlanPhase `yaml:"phases,omitempty"`
	Tasks  []Raw       `yaml:"tasks"`
}

// LoadPlan reads and parses a plan document from disk.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("%w: plan contains no tasks", ErrParse)
	}

	if plan.Name == "" {
		base := filepath.Base(path)
		plan.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &plan, nil
}

// Slug returns the plan name normalized for use as a stream subject token.
func (p *Plan) Slug() string {
	return slug.Make(p.Name)
}

// PhaseNames returns the declared phase number to name mapping.
func (p *Plan) PhaseNames() map[int]string {
	names := make(map[int]string, len(p.Phases))
	for _, ph := range p.Phases {
		if ph.Name != "" {
			names[ph.Number] = ph.Name
		}
	}
	return names
}

// Parse validates the plan's task records into a Set.
func (p *Plan) Parse() (*Set, error) {
	return Parse(p.Tasks, p.PhaseNames())
}
