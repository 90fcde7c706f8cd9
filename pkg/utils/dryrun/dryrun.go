package dryrun

import (
	"context"
)

type ctxDryRunKey struct{}

// With sets the dry-run flag in the context. In dry-run mode every
// side-effecting step of the pipeline becomes a no-op that still returns a
// well-formed, dry-run-tagged result.
func With(ctx context.Context, dryRun bool) context.Context {
	return context.WithValue(ctx, ctxDryRunKey{}, dryRun)
}

// From reports whether the context carries an enabled dry-run flag.
func From(ctx context.Context) bool {
	if value, ok := ctx.Value(ctxDryRunKey{}).(bool); ok {
		return value
	}
	return false
}
