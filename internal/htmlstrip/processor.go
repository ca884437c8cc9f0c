package htmlstrip

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// Config is the configuration block of an html_strip processor.
type Config struct {
	Fields []string `yaml:"fields" mapstructure:"fields"`
}

// Stripper removes markup from a fixed set of fields.
type Stripper struct {
	fields []string
	logger *zap.Logger
}

// New creates a Stripper for fields. Entries are trimmed; blank entries
// are ignored with a warning.
func New(fields []string, log *zap.Logger) *Stripper {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Stripper{logger: log}
	for i, f := range fields {
		name := strings.TrimSpace(f)
		if name == "" {
			log.Warn("Ignoring blank field entry", zap.Int("position", i))
			continue
		}
		log.Debug("Adding field", zap.String("field", name))
		s.fields = append(s.fields, name)
	}

	log.Debug("Configured with fields", zap.String("fields", configuredFields(s.fields)))
	if len(s.fields) == 0 {
		log.Warn("No fields configured. Consider removing the processor.")
	}

	return s
}

// Fields returns the configured field names.
func (s *Stripper) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Process strips markup from every configured field that is present and
// holds text. The document is modified in place and returned.
func (s *Stripper) Process(doc document.Document) document.Document {
	if doc == nil {
		return doc
	}
	for _, f := range s.fields {
		doc.MapText(f, Strip)
	}
	return doc
}

// configuredFields renders fields as " {a} {b}" for diagnostics.
func configuredFields(fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(" {")
		b.WriteString(f)
		b.WriteString("}")
	}
	return b.String()
}
