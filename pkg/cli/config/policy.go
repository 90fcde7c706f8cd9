package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Policy loads the operator policy file: script-defined actions, extra deny
// patterns for the command validator, per-action risk overrides and
// per-action cooldown durations.
type Policy struct {
	path      string
	doc       policyDoc
	cooldowns map[string]time.Duration
}

type policyDoc struct {
	Actions   []executor.ScriptConfig    `yaml:"actions"`
	Deny      []denyEntry                `yaml:"deny"`
	Risks     map[string]types.RiskLevel `yaml:"risks"`
	Cooldowns map[string]string          `yaml:"cooldowns"`
}

type denyEntry struct {
	Name    string `yaml:"name"`
	Literal string `yaml:"literal,omitempty"`
	Regexp  string `yaml:"regexp,omitempty"`
}

func (x *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Path to policy file (YAML)",
			Category:    "Policy",
			Sources:     cli.EnvVars("REMEDY_POLICY"),
			Destination: &x.path,
		},
	}
}

func (x Policy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", x.path),
		slog.Int("actions", len(x.doc.Actions)),
		slog.Int("deny", len(x.doc.Deny)),
		slog.Int("risks", len(x.doc.Risks)),
	)
}

// Load parses the policy file. Without a path it is a no-op and the built-in
// actions and deny-list apply unchanged.
func (x *Policy) Load() error {
	if x.path == "" {
		return nil
	}

	raw, err := os.ReadFile(x.path)
	if err != nil {
		return goerr.Wrap(err, "failed to read policy file",
			goerr.T(errs.TagConfiguration), goerr.V("path", x.path))
	}
	if err := yaml.Unmarshal(raw, &x.doc); err != nil {
		return goerr.Wrap(err, "failed to parse policy file",
			goerr.T(errs.TagConfiguration), goerr.V("path", x.path))
	}

	for i := range x.doc.Actions {
		if err := x.doc.Actions[i].Validate(); err != nil {
			return err
		}
	}
	for _, d := range x.doc.Deny {
		if d.Literal == "" && d.Regexp == "" {
			return goerr.New("deny entry needs literal or regexp",
				goerr.T(errs.TagConfiguration), goerr.V("name", d.Name))
		}
	}
	for name, risk := range x.doc.Risks {
		if err := risk.Validate(); err != nil {
			return goerr.Wrap(err, "invalid risk override",
				goerr.T(errs.TagConfiguration), goerr.V("action", name))
		}
	}
	x.cooldowns = make(map[string]time.Duration, len(x.doc.Cooldowns))
	for name, raw := range x.doc.Cooldowns {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return goerr.Wrap(err, "invalid cooldown duration",
				goerr.T(errs.TagConfiguration), goerr.V("action", name), goerr.V("value", raw))
		}
		x.cooldowns[name] = d
	}
	return nil
}

// CooldownOverrides returns per-action cooldown durations from the policy
// file.
func (x *Policy) CooldownOverrides() map[string]time.Duration {
	return x.cooldowns
}

// ValidatorOptions returns the safety options derived from risk overrides.
func (x *Policy) ValidatorOptions() []safety.Option {
	var opts []safety.Option
	for name, risk := range x.doc.Risks {
		opts = append(opts, safety.WithRiskOverride(name, risk))
	}
	return opts
}

// Apply installs deny patterns into the validator and registers script
// actions. Call after the built-in actions are registered so a policy action
// with a clashing name surfaces as a configuration error.
func (x *Policy) Apply(validator *safety.Validator, registry *executor.Registry, runner *executor.Runner) error {
	for _, d := range x.doc.Deny {
		if d.Regexp != "" {
			if err := validator.AddDenyRegexp(d.Name, d.Regexp); err != nil {
				return err
			}
			continue
		}
		validator.AddDenyPattern(d.Name, d.Literal)
	}

	for _, cfg := range x.doc.Actions {
		act, err := executor.NewScriptAction(cfg, runner)
		if err != nil {
			return err
		}
		if err := registry.Register(act); err != nil {
			return err
		}
	}
	return nil
}
