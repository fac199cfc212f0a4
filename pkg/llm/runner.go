// Package llm runs text generation for the agent. The agent core depends on
// the Runner interface; the Gemini client behind it is swappable in tests.
package llm

import "context"

// Runner produces a completion for a single prompt.
type Runner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, prompt string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
