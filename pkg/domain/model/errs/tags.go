package errs

import "github.com/m-mizutani/goerr/v2"

var (
	// TagConfiguration marks missing or invalid settings. Fatal at startup.
	TagConfiguration = goerr.NewTag("configuration")

	// TagExternal marks transient failures of external collaborators
	// (tracker, notifier, analyzer). Callers retry with backoff and then
	// degrade gracefully.
	TagExternal = goerr.NewTag("external")

	// TagExecution marks a remediation action exiting non-zero or timing
	// out. Non-fatal to the pipeline.
	TagExecution = goerr.NewTag("execution")

	// TagLockContention marks a cycle skipped because the run lock could
	// not be acquired in time.
	TagLockContention = goerr.NewTag("lock_contention")

	// TagCorruptedState marks an unreadable state record. The record is
	// treated as absent; the cycle continues.
	TagCorruptedState = goerr.NewTag("corrupted_state")

	TagNotFound   = goerr.NewTag("not_found")
	TagValidation = goerr.NewTag("validation")
	TagTimeout    = goerr.NewTag("timeout")
)

// RepositoryKey annotates errors with which repository backend raised them.
var RepositoryKey = goerr.NewTypedKey[string]("repository")
