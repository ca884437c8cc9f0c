package replace

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// Config is the configuration block of a pattern_replace processor.
type Config struct {
	Rules  []RuleConfig  `yaml:"rules" mapstructure:"rules"`
	Fields []FieldConfig `yaml:"fields" mapstructure:"fields"`
}

// Engine applies a Plan to documents. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	registry *Registry
	plan     *Plan
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for construction diagnostics and
// regexp2 timeouts.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.logger = log
		}
	}
}

// New creates an engine over an already validated registry and plan.
func New(registry *Registry, plan *Plan, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		plan:     plan,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if plan.Len() == 0 {
		e.logger.Warn("No fields configured. Consider removing the processor.")
	} else {
		for _, field := range plan.Fields() {
			e.logger.Debug("Field configured", zap.String("field", field), zap.Strings("rules", plan.Rules(field)))
		}
	}

	return e
}

// NewFromConfig builds the registry and plan from cfg and returns the engine.
func NewFromConfig(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	registry, err := NewRegistry(cfg.Rules, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule registry: %w", err)
	}

	plan, err := NewPlan(registry, Bindings(cfg.Fields))
	if err != nil {
		return nil, fmt.Errorf("failed to build field plan: %w", err)
	}

	return New(registry, plan, opts...), nil
}

// Registry returns the engine's rule registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Plan returns the engine's field plan.
func (e *Engine) Plan() *Plan { return e.plan }

// Process rewrites every planned field of doc that is present and holds
// text. Each rule's output feeds the next rule of the same field. The
// document is modified in place and returned.
func (e *Engine) Process(doc document.Document) document.Document {
	if doc == nil {
		return doc
	}
	for i := range e.plan.chains {
		chain := &e.plan.chains[i]
		doc.MapText(chain.field, func(value string) string {
			return e.fold(chain, value)
		})
	}
	return doc
}

// Apply runs the rule chain of field over value. Unplanned fields are
// returned unchanged.
func (e *Engine) Apply(field, value string) string {
	i, ok := e.plan.index[field]
	if !ok {
		return value
	}
	return e.fold(&e.plan.chains[i], value)
}

func (e *Engine) fold(chain *fieldChain, value string) string {
	for _, rule := range chain.rules {
		out, err := rule.TryApply(value)
		if err != nil {
			e.logger.Warn("Rule evaluation failed, value left unchanged",
				zap.String("field", chain.field),
				zap.String("rule", rule.id),
				zap.Error(err),
			)
			continue
		}
		value = out
	}
	return value
}
