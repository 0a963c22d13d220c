package scenario

import (
	"cmp"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/materialite/pkg/materialite"
)

// Result is the state of the view after a step.
type Result struct {
	Step    string
	Version materialite.Version
	Values  []int
	Size    int
	// Err is set if the step was rolled back.
	Err error
}

// String renders the result in a single line.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s @%d: rolled back (%s): %v size=%d", r.Step, r.Version, r.Err,
			r.Values, r.Size)
	}
	return fmt.Sprintf("%s @%d: %v size=%d", r.Step, r.Version, r.Values, r.Size)
}

// Runner executes a scenario on its own coordinator.
type Runner struct {
	scenario *Scenario
	m        *materialite.Materialite
	set      *materialite.SortedSet[int]
	view     *materialite.TreeView[int]
	size     *materialite.ValueView[int]
	log      logr.Logger
}

// NewRunner builds the source, the pipeline and the views of the scenario and loads the initial
// values in the first version.
func NewRunner(s *Scenario, log logr.Logger, opts ...materialite.Option) (*Runner, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	name := s.Name
	if name == "" {
		name = "scenario"
	}
	opts = append([]materialite.Option{materialite.WithName(name), materialite.WithLogger(log)}, opts...)
	m := materialite.New(opts...)

	r := &Runner{
		scenario: s,
		m:        m,
		set:      materialite.NewSortedSet(m, cmp.Compare[int]),
		log:      log.WithName("scenario").WithValues("name", name),
	}

	if len(s.Initial) > 0 {
		r.set.AddAll(s.Initial...)
	}

	out := r.build()
	r.view = out.Materialize(cmp.Compare[int])
	r.size = materialite.MaterializeValue(materialite.Size(out), 0)

	r.log.V(1).Info("pipeline ready", "stages", len(s.Pipeline), "initial", len(s.Initial),
		"version", m.Version())
	return r, nil
}

func (r *Runner) build() *materialite.Stream[int] {
	out := r.set.Stream()
	for _, st := range r.scenario.Pipeline {
		switch {
		case st.Filter != nil:
			f := *st.Filter
			out = out.Filter(func(v int) bool {
				if f.Gt != nil && v <= *f.Gt {
					return false
				}
				if f.Lt != nil && v >= *f.Lt {
					return false
				}
				return f.Mod == nil || v%*f.Mod == 0
			})
		case st.Map != nil:
			mul, add := 1, st.Map.Add
			if st.Map.Mul != nil {
				mul = *st.Map.Mul
			}
			out = materialite.Map(out, func(v int) int { return v*mul + add })
		case st.After != nil:
			out = out.After(*st.After, r.set.Ordering())
		case st.Negate:
			out = out.Negate()
		}
	}
	return out
}

// Materialite returns the coordinator running the scenario.
func (r *Runner) Materialite() *materialite.Materialite { return r.m }

// Current returns the state of the view.
func (r *Runner) Current(step string) Result {
	return Result{
		Step:    step,
		Version: r.m.Version(),
		Values:  r.view.Slice(),
		Size:    r.size.Value(),
	}
}

// Step commits the i-th step of the scenario.
func (r *Runner) Step(i int) Result {
	st, name := r.scenario.Steps[i], r.scenario.StepName(i)
	err := r.m.Tx(func() error {
		r.set.AddAll(st.Add...)
		r.set.DeleteAll(st.Delete...)
		if st.Recompute {
			r.set.RecomputeAll()
		}
		if st.Fail {
			return fmt.Errorf("%w: %s", ErrStepFailed, name)
		}
		return nil
	})

	res := r.Current(name)
	res.Err = err
	if err != nil {
		r.log.Info("step rolled back", "step", name, "error", err.Error())
	} else {
		r.log.V(1).Info("step committed", "step", name, "version", res.Version, "values", len(res.Values))
	}
	return res
}

// Run commits every step and reports the result of each to fn.
func (r *Runner) Run(fn func(Result)) {
	for i := range r.scenario.Steps {
		fn(r.Step(i))
	}
}
