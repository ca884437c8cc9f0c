package replace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewRule_Valid(t *testing.T) {
	rule, err := NewRule("prefix_rule", `\p{P}`, " ")
	require.NoError(t, err)
	assert.Equal(t, "prefix_rule", rule.ID())
	assert.Equal(t, `\p{P}`, rule.Pattern())
	assert.Equal(t, " ", rule.Replacement())
	assert.Equal(t, SyntaxRE2, rule.Syntax())
}

func TestNewRule_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RuleConfig
		wantErr error
	}{
		{name: "empty id", cfg: RuleConfig{ID: "", Pattern: strPtr("legal"), Replace: strPtr("")}, wantErr: ErrEmptyID},
		{name: "missing pattern", cfg: RuleConfig{ID: "id", Replace: strPtr("")}, wantErr: ErrMissingPattern},
		{name: "unbalanced group", cfg: RuleConfig{ID: "id", Pattern: strPtr(`(\d+`)}},
		{name: "unbalanced group regexp2", cfg: RuleConfig{ID: "id", Pattern: strPtr(`(\d+`), Syntax: SyntaxRegexp2}},
		{name: "unknown syntax", cfg: RuleConfig{ID: "id", Pattern: strPtr(`a`), Syntax: "pcre"}},
		{name: "missing group", cfg: RuleConfig{ID: "id", Pattern: strPtr(`(a)`), Replace: strPtr("$2")}},
		{name: "unknown named group", cfg: RuleConfig{ID: "id", Pattern: strPtr(`(a)`), Replace: strPtr("${word}")}},
		{name: "dangling dollar", cfg: RuleConfig{ID: "id", Pattern: strPtr(`a`), Replace: strPtr("cost $")}},
		{name: "dollar without group", cfg: RuleConfig{ID: "id", Pattern: strPtr(`a`), Replace: strPtr("$x")}},
		{name: "dangling backslash", cfg: RuleConfig{ID: "id", Pattern: strPtr(`a`), Replace: strPtr(`a\`)}},
		{name: "unterminated name", cfg: RuleConfig{ID: "id", Pattern: strPtr(`(?P<w>a)`), Replace: strPtr("${w")}},
		{name: "missing group regexp2", cfg: RuleConfig{ID: "id", Pattern: strPtr(`(a)`), Replace: strPtr("$3"), Syntax: SyntaxRegexp2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := tt.cfg.Build()
			require.Error(t, err)
			assert.Nil(t, rule)

			var invalid *InvalidRuleError
			require.True(t, errors.As(err, &invalid))
			assert.NotEmpty(t, invalid.Reason)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRuleConfig_DefaultReplace(t *testing.T) {
	rule, err := RuleConfig{ID: "digits", Pattern: strPtr(`\d`)}.Build()
	require.NoError(t, err)
	assert.Equal(t, "", rule.Replacement())
	assert.Equal(t, "abc", rule.Apply("a1b2c3"))
}

func TestRule_String(t *testing.T) {
	rule, err := NewRule("id", `(\d+)`, "?")
	require.NoError(t, err)
	assert.Equal(t, `Id: [id] Pattern: [(\d+)] Replace: [?]`, rule.String())
}

func TestRule_Apply(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		replace string
		input   string
		want    string
	}{
		{name: "punctuation", pattern: `\p{P}`, replace: "", input: "There, is. punctuation!!", want: "There is punctuation"},
		{name: "prefix", pattern: `^\d{4}`, replace: "****", input: "3333-1111-2222-3333", want: "****-1111-2222-3333"},
		{name: "no match", pattern: `xyz`, replace: "_", input: "abc", want: "abc"},
		{name: "capture group", pattern: `(\w+)@(\w+)`, replace: "${2} at ${1}", input: "user@host", want: "host at user"},
		{name: "named group", pattern: `(?P<year>\d{4})-(?P<month>\d{2})`, replace: "${month}/${year}", input: "2011-07", want: "07/2011"},
		{name: "empty input", pattern: `a`, replace: "b", input: "", want: ""},
		{name: "group then literal", pattern: `(\d{4})-`, replace: "$1x", input: "3333-1111", want: "3333x1111"},
		{name: "escaped dollar", pattern: `(\d+)`, replace: `\$$1`, input: "42", want: "$42"},
		{name: "escaped backslash", pattern: `-`, replace: `\\`, input: "a-b", want: `a\b`},
		{name: "digits beyond group count", pattern: `(a)`, replace: "$10", input: "a", want: "a0"},
		{name: "two digit group", pattern: `(a)(b)(c)(d)(e)(f)(g)(h)(i)(j)`, replace: "$10", input: "abcdefghij", want: "j"},
		{name: "numbered braces", pattern: `(\w+)@(\w+)`, replace: "$2 at $1", input: "user@host", want: "host at user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewRule("r", tt.pattern, tt.replace)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.Apply(tt.input))
		})
	}
}

func TestRule_ApplyIdempotentPunctuation(t *testing.T) {
	rule, err := NewRule("punctuation", `\p{P}`, "")
	require.NoError(t, err)

	once := rule.Apply("a.b,c!d?")
	assert.Equal(t, once, rule.Apply(once))
}

func TestRule_Regexp2(t *testing.T) {
	rule, err := RuleConfig{
		ID:      "mask",
		Pattern: strPtr(`\d(?=\d{4})`),
		Replace: strPtr("*"),
		Syntax:  SyntaxRegexp2,
	}.Build()
	require.NoError(t, err)

	assert.Equal(t, SyntaxRegexp2, rule.Syntax())
	assert.Equal(t, "*****6789", rule.Apply("123456789"))

	out, err := rule.TryApply("12345")
	require.NoError(t, err)
	assert.Equal(t, "*2345", out)
}

func TestRule_Regexp2BackReference(t *testing.T) {
	rule, err := RuleConfig{
		ID:      "doubled",
		Pattern: strPtr(`\b(\w+) \1\b`),
		Replace: strPtr("$1"),
		Syntax:  SyntaxRegexp2,
	}.Build()
	require.NoError(t, err)
	assert.Equal(t, "the cat", rule.Apply("the the cat"))
}

func TestNewRule_InvalidReplacementReason(t *testing.T) {
	_, err := NewRule("grp", `(\d{4})-`, "$2")
	require.Error(t, err)

	var invalid *InvalidRuleError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "grp", invalid.ID)
	assert.Equal(t, "invalid replacement", invalid.Reason)
	assert.Contains(t, err.Error(), "no group 2")
}

func TestRule_Regexp2Template(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		replace string
		input   string
		want    string
	}{
		{name: "group then literal", pattern: `(\d{4})-`, replace: "$1x", input: "3333-1111", want: "3333x1111"},
		{name: "escaped dollar", pattern: `(\d+)`, replace: `\$$1`, input: "42", want: "$42"},
		{name: "named group", pattern: `(?<year>\d{4})-(?<month>\d{2})`, replace: "${month}/${year}", input: "2011-07", want: "07/2011"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := RuleConfig{ID: "r", Pattern: strPtr(tt.pattern), Replace: strPtr(tt.replace), Syntax: SyntaxRegexp2}.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, rule.Apply(tt.input))
		})
	}
}
