package replace

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
)

// Syntax selects the regular expression dialect a rule is compiled with.
type Syntax string

const (
	// SyntaxRE2 compiles with the standard library (linear time, no lookaround).
	SyntaxRE2 Syntax = "re2"
	// SyntaxRegexp2 compiles with a backtracking engine compatible with
	// Java and .NET patterns. Evaluation is bounded by the rule timeout.
	SyntaxRegexp2 Syntax = "regexp2"
)

// DefaultMatchTimeout bounds a single regexp2 substitution.
const DefaultMatchTimeout = 100 * time.Millisecond

// RuleConfig is the unvalidated form of a rule as read from configuration.
// Pattern and Replace are pointers so that an absent key can be told
// apart from an empty value.
type RuleConfig struct {
	ID      string        `yaml:"id" mapstructure:"id"`
	Pattern *string       `yaml:"pattern" mapstructure:"pattern"`
	Replace *string       `yaml:"replace" mapstructure:"replace"`
	Syntax  Syntax        `yaml:"syntax" mapstructure:"syntax"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Build validates the configuration and compiles the rule.
func (c RuleConfig) Build() (*Rule, error) {
	if c.Pattern == nil {
		return nil, &InvalidRuleError{ID: c.ID, Reason: "pattern is missing", Err: ErrMissingPattern}
	}
	replace := ""
	if c.Replace != nil {
		replace = *c.Replace
	}
	return newRule(c.ID, *c.Pattern, replace, c.Syntax, c.Timeout)
}

// matcher is the compiled form of a pattern.
type matcher interface {
	replaceAll(input, replace string) (string, error)
	groups() groupSet
}

type re2Matcher struct {
	re *regexp.Regexp
}

func (m re2Matcher) replaceAll(input, replace string) (string, error) {
	return m.re.ReplaceAllString(input, replace), nil
}

func (m re2Matcher) groups() groupSet {
	return groupSet{
		count: m.re.NumSubexp(),
		named: func(name string) bool { return m.re.SubexpIndex(name) >= 0 },
	}
}

type regexp2Matcher struct {
	re *regexp2.Regexp
}

func (m regexp2Matcher) replaceAll(input, replace string) (string, error) {
	return m.re.Replace(input, replace, -1, -1)
}

func (m regexp2Matcher) groups() groupSet {
	count := 0
	for _, n := range m.re.GetGroupNumbers() {
		count = max(count, n)
	}
	return groupSet{
		count: count,
		named: func(name string) bool { return m.re.GroupNumberFromName(name) >= 0 },
	}
}

// Rule is an immutable, named regex substitution.
type Rule struct {
	id      string
	pattern string
	replace string
	syntax  Syntax
	tmpl    string // replace in the matcher's own syntax
	m       matcher
}

// NewRule compiles pattern with the default syntax.
func NewRule(id, pattern, replace string) (*Rule, error) {
	return newRule(id, pattern, replace, SyntaxRE2, 0)
}

func newRule(id, pattern, replace string, syntax Syntax, timeout time.Duration) (*Rule, error) {
	if id == "" {
		return nil, &InvalidRuleError{Pattern: pattern, Reason: "id is empty", Err: ErrEmptyID}
	}
	if syntax == "" {
		syntax = SyntaxRE2
	}

	var m matcher
	switch syntax {
	case SyntaxRE2:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &InvalidRuleError{ID: id, Pattern: pattern, Reason: "pattern does not compile", Err: err}
		}
		m = re2Matcher{re: re}
	case SyntaxRegexp2:
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, &InvalidRuleError{ID: id, Pattern: pattern, Reason: "pattern does not compile", Err: err}
		}
		if timeout <= 0 {
			timeout = DefaultMatchTimeout
		}
		re.MatchTimeout = timeout
		m = regexp2Matcher{re: re}
	default:
		return nil, &InvalidRuleError{ID: id, Pattern: pattern, Reason: "unknown syntax", Err: fmt.Errorf("unknown syntax %q", syntax)}
	}

	tmpl, err := expandTemplate(replace, m.groups())
	if err != nil {
		return nil, &InvalidRuleError{ID: id, Pattern: pattern, Reason: "invalid replacement", Err: err}
	}

	return &Rule{
		id:      id,
		pattern: pattern,
		replace: replace,
		syntax:  syntax,
		tmpl:    tmpl,
		m:       m,
	}, nil
}

// ID returns the rule id.
func (r *Rule) ID() string { return r.id }

// Pattern returns the source pattern.
func (r *Rule) Pattern() string { return r.pattern }

// Replacement returns the replacement template.
func (r *Rule) Replacement() string { return r.replace }

// Syntax returns the dialect the pattern was compiled with.
func (r *Rule) Syntax() Syntax { return r.syntax }

// Apply replaces every match of the pattern in input. The replacement
// refers to capture groups as $1 or ${name}; \$ and \\ are literal.
//
// Apply never fails: when a regexp2 evaluation exceeds its timeout the
// input is returned unchanged.
func (r *Rule) Apply(input string) string {
	out, err := r.m.replaceAll(input, r.tmpl)
	if err != nil {
		return input
	}
	return out
}

// TryApply is Apply with the evaluation error exposed.
func (r *Rule) TryApply(input string) (string, error) {
	out, err := r.m.replaceAll(input, r.tmpl)
	if err != nil {
		return input, fmt.Errorf("rule %q: %w", r.id, err)
	}
	return out, nil
}

func (r *Rule) String() string {
	return fmt.Sprintf("Id: [%s] Pattern: [%s] Replace: [%s]", r.id, r.pattern, r.replace)
}
