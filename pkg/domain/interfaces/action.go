package interfaces

import (
	"context"

	"github.com/secmon-lab/remedy/pkg/domain/model/action"
)

// RemediationAction is one named remediation. Validate is a pre-flight
// feasibility check (required tool present, target exists) and must have no
// side effects; on failure Execute is never called. Execute performs the
// remediation; the executor bounds it with a hard timeout and terminates the
// whole process group on expiry.
//
// Phase errors are captured by the executor as failure messages and never
// propagate past it.
type RemediationAction interface {
	Descriptor() action.Descriptor
	Validate(ctx context.Context, target string, args []string) error
	Execute(ctx context.Context, target string, args []string) (exitCode int, output string, err error)
}

// ActionVerifier is implemented by actions that define a post-condition
// check. Actions without it report verification outcome "skipped".
type ActionVerifier interface {
	Verify(ctx context.Context, target string) error
}
