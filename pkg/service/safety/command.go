package safety

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
)

// denyPattern is one forbidden command shape. Either a literal substring or
// a compiled regexp, evaluated top to bottom, first match wins. Literal
// matching ignores case; the built-in regexps carry (?i) themselves.
type denyPattern struct {
	name    string
	literal string
	re      *regexp.Regexp
}

func (p denyPattern) matches(command string) bool {
	if p.re != nil {
		return p.re.MatchString(command)
	}
	return strings.Contains(strings.ToLower(command), strings.ToLower(p.literal))
}

func defaultDenyList() []denyPattern {
	return []denyPattern{
		{name: "recursive delete of root", re: regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\s+/(\s|$)`)},
		{name: "recursive delete of system directory", re: regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\s+/(etc|var|usr|home|root|boot)\b`)},
		{name: "recursive chmod of root", re: regexp.MustCompile(`(?i)chmod\s+(-[a-z]*r[a-z]*|--recursive)\s+\S+\s+/(\s|$)`)},
		{name: "recursive chown of root", re: regexp.MustCompile(`(?i)chown\s+(-[a-z]*r[a-z]*|--recursive)\s+\S+\s+/(\s|$)`)},
		{name: "filesystem format", re: regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\s`)},
		{name: "zero-fill of block device", re: regexp.MustCompile(`(?i)\bdd\s+.*of=/dev/`)},
		{name: "fork bomb", literal: ":(){ :|:& };:"},
		{name: "pipe download to shell", re: regexp.MustCompile(`(?i)(curl|wget)\s+[^|]*\|\s*(sudo\s+)?(ba)?sh`)},
		{name: "system shutdown", re: regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b`)},
		{name: "write to raw block device", re: regexp.MustCompile(`(?i)>\s*/dev/(sd|hd|nvme|vd)`)},
	}
}

// ValidateCommand rejects a raw shell command when it matches any deny-list
// entry. The returned error names the matched pattern. A nil return means no
// pattern matched, nothing more.
func (v *Validator) ValidateCommand(command string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, p := range v.denyList {
		if p.matches(command) {
			return goerr.New("command matches deny-list pattern",
				goerr.T(errs.TagValidation),
				goerr.V("pattern", p.name),
				goerr.V("command", command),
			)
		}
	}
	return nil
}

// AddDenyPattern appends a literal substring pattern to the deny-list at
// runtime.
func (v *Validator) AddDenyPattern(name, literal string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.denyList = append(v.denyList, denyPattern{name: name, literal: literal})
}

// AddDenyRegexp appends a regexp pattern to the deny-list at runtime.
func (v *Validator) AddDenyRegexp(name string, expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return goerr.Wrap(err, "invalid deny pattern",
			goerr.T(errs.TagConfiguration),
			goerr.V("name", name),
			goerr.V("expr", expr))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.denyList = append(v.denyList, denyPattern{name: name, re: re})
	return nil
}
