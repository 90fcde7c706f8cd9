package executor

import (
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
)

// Registry maps action names to implementations. It is built at startup;
// the pipeline only ever dispatches to registered actions, never to
// arbitrary names from untrusted input.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]interfaces.RemediationAction
}

func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]interfaces.RemediationAction),
	}
}

func (r *Registry) Register(act interfaces.RemediationAction) error {
	name := act.Descriptor().Name
	if name == "" {
		return goerr.New("action name is required", goerr.T(errs.TagConfiguration))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.actions[name]; ok {
		return goerr.New("action already registered",
			goerr.T(errs.TagConfiguration),
			goerr.V("name", name))
	}
	r.actions[name] = act
	return nil
}

func (r *Registry) Get(name string) (interfaces.RemediationAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	act, ok := r.actions[name]
	return act, ok
}

// List returns descriptors of all registered actions, sorted by name.
func (r *Registry) List() []action.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]action.Descriptor, 0, len(r.actions))
	for _, act := range r.actions {
		out = append(out, act.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
