package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jyllands-Posten/solrprocessors/internal/replace"
)

const sampleConfig = `
server:
  port: 9090
logging:
  level: debug
  format: console
processors:
  - name: strip-markup
    type: html_strip
    html_strip:
      fields: [header, content]
  - name: scrub
    type: pattern_replace
    pattern_replace:
      rules:
        - id: punctuation
          pattern: '\p{P}'
          replace: ""
        - id: prefix
          pattern: '^\d{4}'
          replace: "****"
        - id: lookahead
          pattern: '\d(?=\d{4})'
          replace: "*"
          syntax: regexp2
          timeout: 250ms
      fields:
        - name: comment
          rule: punctuation
        - name: clean
          rules: [punctuation, prefix]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	require.Len(t, cfg.Processors, 2)

	strip := cfg.Processors[0]
	assert.Equal(t, ProcessorHTMLStrip, strip.Type)
	require.NotNil(t, strip.HTMLStrip)
	assert.Equal(t, []string{"header", "content"}, strip.HTMLStrip.Fields)
	assert.Nil(t, strip.PatternReplace)

	scrub := cfg.Processors[1].PatternReplace
	require.NotNil(t, scrub)
	require.Len(t, scrub.Rules, 3)
	require.NotNil(t, scrub.Rules[0].Pattern)
	assert.Equal(t, `\p{P}`, *scrub.Rules[0].Pattern)
	require.NotNil(t, scrub.Rules[0].Replace)
	assert.Equal(t, "", *scrub.Rules[0].Replace)
	assert.Equal(t, replace.SyntaxRegexp2, scrub.Rules[2].Syntax)
	assert.Equal(t, 250*time.Millisecond, scrub.Rules[2].Timeout)

	assert.Equal(t, []replace.FieldBinding{
		{Field: "comment", RuleID: "punctuation"},
		{Field: "clean", RuleID: "punctuation"},
		{Field: "clean", RuleID: "prefix"},
	}, replace.Bindings(scrub.Fields))
}

func TestLoad_MissingReplaceIsNil(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
processors:
  - name: scrub
    type: pattern_replace
    pattern_replace:
      rules:
        - id: digits
          pattern: '\d'
`))
	require.NoError(t, err)
	assert.Nil(t, cfg.Processors[0].PatternReplace.Rules[0].Replace)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	require.NoError(t, err)

	defaults := GetDefaults()
	assert.Equal(t, defaults.Server, cfg.Server)
	assert.Equal(t, defaults.ETL, cfg.ETL)
	assert.Empty(t, cfg.Processors)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SOLRPROC_SERVER_PORT", "9400")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 9400, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad port", content: "server:\n  port: 70000\n", wantErr: "invalid server port"},
		{name: "bad level", content: "logging:\n  level: loud\n", wantErr: "invalid log level"},
		{name: "bad format", content: "logging:\n  format: xml\n", wantErr: "invalid log format"},
		{name: "unknown key", content: "server:\n  prot: 1\n", wantErr: "failed to unmarshal config"},
		{name: "bad trusted proxy", content: "server:\n  trusted_proxies: [10.0.0.0/33]\n", wantErr: "invalid trusted proxy"},
		{
			name:    "unknown processor type",
			content: "processors:\n  - name: a\n    type: lowercase\n",
			wantErr: `unknown type "lowercase"`,
		},
		{
			name:    "missing block",
			content: "processors:\n  - name: a\n    type: html_strip\n",
			wantErr: "missing html_strip block",
		},
		{
			name:    "duplicate name",
			content: "processors:\n  - name: a\n    type: html_strip\n    html_strip: {fields: [x]}\n  - name: a\n    type: html_strip\n    html_strip: {fields: [y]}\n",
			wantErr: "duplicate name",
		},
		{
			name:    "missing name",
			content: "processors:\n  - type: html_strip\n    html_strip: {fields: [x]}\n",
			wantErr: "name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTrustedProxy(t *testing.T) {
	p, err := ParseTrustedProxy("10.1.2.3/8")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/8", p.String())

	p, err = ParseTrustedProxy(" 127.0.0.1 ")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1/32", p.String())

	p, err = ParseTrustedProxy("::1")
	require.NoError(t, err)
	assert.Equal(t, "::1/128", p.String())

	_, err = ParseTrustedProxy("proxy.local")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
