// Package scenario loads YAML scenarios driving an integer sorted set through a pipeline of
// operators, and runs them step by step.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

var (
	// ErrInvalidScenario is returned for scenarios that cannot be run.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrStepFailed is the error of steps marked to fail. The step is rolled back.
	ErrStepFailed = errors.New("step failed")
)

// Scenario is a scripted run: the initial contents of the source, the pipeline between the source
// and the view, and the steps to commit.
type Scenario struct {
	Name     string  `json:"name,omitempty"`
	Initial  []int   `json:"initial,omitempty"`
	Pipeline []Stage `json:"pipeline,omitempty"`
	Steps    []Step  `json:"steps,omitempty"`
}

// Stage is one operator of the pipeline. Exactly one field must be set.
type Stage struct {
	Filter *FilterStage `json:"filter,omitempty"`
	Map    *MapStage    `json:"map,omitempty"`
	After  *int         `json:"after,omitempty"`
	Negate bool         `json:"negate,omitempty"`
}

// FilterStage keeps the values satisfying every condition set.
type FilterStage struct {
	// Gt keeps values greater than the given one.
	Gt *int `json:"gt,omitempty"`
	// Lt keeps values less than the given one.
	Lt *int `json:"lt,omitempty"`
	// Mod keeps the multiples of the given value.
	Mod *int `json:"mod,omitempty"`
}

// MapStage rewrites every value v to v*Mul+Add. Mul defaults to 1.
type MapStage struct {
	Add int  `json:"add,omitempty"`
	Mul *int `json:"mul,omitempty"`
}

// Step is one transaction.
type Step struct {
	Name      string `json:"name,omitempty"`
	Add       []int  `json:"add,omitempty"`
	Delete    []int  `json:"delete,omitempty"`
	Recompute bool   `json:"recompute,omitempty"`
	Fail      bool   `json:"fail,omitempty"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read scenario %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{}
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the pipeline stages.
func (s *Scenario) Validate() error {
	for i, st := range s.Pipeline {
		n := 0
		if st.Filter != nil {
			n++
			if st.Filter.Mod != nil && *st.Filter.Mod == 0 {
				return fmt.Errorf("%w: stage %d: filter by mod 0", ErrInvalidScenario, i)
			}
		}
		if st.Map != nil {
			n++
		}
		if st.After != nil {
			n++
		}
		if st.Negate {
			n++
		}
		if n != 1 {
			return fmt.Errorf("%w: stage %d: exactly one operator expected, found %d",
				ErrInvalidScenario, i, n)
		}
	}
	return nil
}

// StepName returns the name of the i-th step, generating one if unset.
func (s *Scenario) StepName(i int) string {
	if name := s.Steps[i].Name; name != "" {
		return name
	}
	return fmt.Sprintf("step-%d", i+1)
}
