// Package middleware wraps dsf command execution with cross-cutting
// behaviour such as logging and timing.
package middleware

import (
	"github.com/spf13/cobra"
)

// RunFunc is the function signature for cobra command execution.
type RunFunc func(cmd *cobra.Command, args []string) error

// Middleware wraps a RunFunc with additional behavior.
type Middleware func(next RunFunc) RunFunc

// Chain combines middleware into one. The first middleware wraps outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final RunFunc) RunFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Apply applies middleware to a cobra command's RunE function.
func Apply(cmd *cobra.Command, middlewares ...Middleware) {
	if cmd.RunE == nil {
		return
	}
	cmd.RunE = Chain(middlewares...)(cmd.RunE)
}

// ApplyRecursive applies middleware to a command and all its subcommands.
func ApplyRecursive(cmd *cobra.Command, middlewares ...Middleware) {
	Apply(cmd, middlewares...)
	for _, child := range cmd.Commands() {
		ApplyRecursive(child, middlewares...)
	}
}
