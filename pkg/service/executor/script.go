package executor

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// ScriptConfig declares an operator-defined action loaded from the policy
// file. Commands are shell lines; each passes the deny-list before running.
type ScriptConfig struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Risk        types.RiskLevel `yaml:"risk"`
	ValidateCmd string          `yaml:"validate,omitempty"`
	ExecuteCmd  string          `yaml:"execute"`
	VerifyCmd   string          `yaml:"verify,omitempty"`
}

func (c *ScriptConfig) Validate() error {
	if c.Name == "" {
		return goerr.New("script action name is required", goerr.T(errs.TagConfiguration))
	}
	if c.ExecuteCmd == "" {
		return goerr.New("script action execute command is required",
			goerr.T(errs.TagConfiguration), goerr.V("name", c.Name))
	}
	if err := c.Risk.Validate(); err != nil {
		return goerr.Wrap(err, "invalid script action risk",
			goerr.T(errs.TagConfiguration), goerr.V("name", c.Name))
	}
	return nil
}

// NewScriptAction builds a RemediationAction from operator configuration.
func NewScriptAction(cfg ScriptConfig, runner *Runner) (interfaces.RemediationAction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := &scriptAction{cfg: cfg, runner: runner}
	if cfg.VerifyCmd != "" {
		return &verifiedScriptAction{scriptAction: base}, nil
	}
	return base, nil
}

type scriptAction struct {
	cfg    ScriptConfig
	runner *Runner
}

func (a *scriptAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:           a.cfg.Name,
		Description:    a.cfg.Description,
		Risk:           a.cfg.Risk,
		AutoExecutable: a.cfg.Risk == types.RiskLevelLow,
	}
}

func (a *scriptAction) Validate(ctx context.Context, target string, args []string) error {
	if a.cfg.ValidateCmd == "" {
		return nil
	}
	code, out, err := a.runner.RunShell(ctx, a.cfg.ValidateCmd)
	if err != nil {
		return err
	}
	if code != 0 {
		return goerr.New("validate command failed",
			goerr.V("name", a.cfg.Name),
			goerr.V("exit_code", code),
			goerr.V("output", out))
	}
	return nil
}

func (a *scriptAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	return a.runner.RunShell(ctx, a.cfg.ExecuteCmd)
}

type verifiedScriptAction struct {
	*scriptAction
}

var _ interfaces.ActionVerifier = &verifiedScriptAction{}

func (a *verifiedScriptAction) Verify(ctx context.Context, target string) error {
	code, out, err := a.runner.RunShell(ctx, a.cfg.VerifyCmd)
	if err != nil {
		return err
	}
	if code != 0 {
		return goerr.New("verify command failed",
			goerr.V("name", a.cfg.Name),
			goerr.V("exit_code", code),
			goerr.V("output", out))
	}
	return nil
}
