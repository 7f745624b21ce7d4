package pipeline

// Step is one stage of a run. A step inspects or updates the context and
// returns an error to stop the chain.
type Step interface {
	Name() string
	Apply(c *Context) error
}

type stepFunc struct {
	name string
	fn   func(*Context) error
}

func (s stepFunc) Name() string           { return s.name }
func (s stepFunc) Apply(c *Context) error { return s.fn(c) }

// StepFunc adapts fn to a Step.
func StepFunc(name string, fn func(*Context) error) Step {
	return stepFunc{name: name, fn: fn}
}

// Chain is an ordered list of steps.
type Chain []Step

// Run applies each step in order and stops at the first error. It returns
// the name of the failing step along with its error.
func (ch Chain) Run(c *Context) (string, error) {
	for _, s := range ch {
		if err := s.Apply(c); err != nil {
			return s.Name(), err
		}
	}
	return "", nil
}

// Names lists the step names in order.
func (ch Chain) Names() []string {
	out := make([]string, len(ch))
	for i, s := range ch {
		out[i] = s.Name()
	}
	return out
}
