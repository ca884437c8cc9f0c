package replace

import (
	"sort"

	"go.uber.org/zap"
)

// Registry maps rule ids to compiled rules. It is read-only once built.
type Registry struct {
	rules map[string]*Rule
	order []string
}

// NewRegistry compiles every rule configuration. Construction is fail-fast:
// the first malformed rule aborts it. A later rule with an id already seen
// replaces the earlier one.
func NewRegistry(configs []RuleConfig, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{rules: make(map[string]*Rule, len(configs))}
	for _, cfg := range configs {
		rule, err := cfg.Build()
		if err != nil {
			return nil, err
		}

		if prev, exists := r.rules[rule.id]; exists {
			log.Warn("Duplicate rule id, later definition wins",
				zap.String("rule", rule.id),
				zap.String("previous", prev.String()),
				zap.String("current", rule.String()),
			)
		} else {
			r.order = append(r.order, rule.id)
		}
		r.rules[rule.id] = rule

		log.Debug("Rule registered", zap.Stringer("rule", rule))
	}

	return r, nil
}

// Get returns the rule registered under id.
func (r *Registry) Get(id string) (*Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rules returns the rules in order of first registration.
func (r *Registry) Rules() []*Rule {
	rules := make([]*Rule, 0, len(r.order))
	for _, id := range r.order {
		rules = append(rules, r.rules[id])
	}
	return rules
}
