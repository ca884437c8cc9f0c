package replace

// FieldBinding binds one rule to one field. Repeating a field appends to
// its rule chain.
type FieldBinding struct {
	Field  string
	RuleID string
}

// FieldConfig is the configuration form of a field's rule chain. Rule and
// Rules may both be set; Rule comes first.
type FieldConfig struct {
	Name  string   `yaml:"name" mapstructure:"name"`
	Rule  string   `yaml:"rule" mapstructure:"rule"`
	Rules []string `yaml:"rules" mapstructure:"rules"`
}

// Bindings flattens field configurations into bindings, keeping
// declaration order.
func Bindings(fields []FieldConfig) []FieldBinding {
	var out []FieldBinding
	for _, f := range fields {
		if f.Rule != "" {
			out = append(out, FieldBinding{Field: f.Name, RuleID: f.Rule})
		}
		for _, id := range f.Rules {
			out = append(out, FieldBinding{Field: f.Name, RuleID: id})
		}
	}
	return out
}

type fieldChain struct {
	field string
	rules []*Rule
	ids   []string
}

// Plan maps field names to the ordered chain of rules applied to them.
type Plan struct {
	chains []fieldChain
	index  map[string]int
}

// NewPlan resolves every binding against registry. A binding to a rule id
// that is not registered fails with *UnknownRuleError.
func NewPlan(registry *Registry, bindings []FieldBinding) (*Plan, error) {
	p := &Plan{index: make(map[string]int)}
	for _, b := range bindings {
		rule, ok := registry.Get(b.RuleID)
		if !ok {
			return nil, &UnknownRuleError{Field: b.Field, RuleID: b.RuleID}
		}

		i, ok := p.index[b.Field]
		if !ok {
			i = len(p.chains)
			p.index[b.Field] = i
			p.chains = append(p.chains, fieldChain{field: b.Field})
		}
		p.chains[i].rules = append(p.chains[i].rules, rule)
		p.chains[i].ids = append(p.chains[i].ids, rule.id)
	}
	return p, nil
}

// Fields returns the planned fields in order of first appearance.
func (p *Plan) Fields() []string {
	fields := make([]string, len(p.chains))
	for i, c := range p.chains {
		fields[i] = c.field
	}
	return fields
}

// Rules returns the rule ids bound to field, in application order.
func (p *Plan) Rules(field string) []string {
	i, ok := p.index[field]
	if !ok {
		return nil
	}
	ids := make([]string, len(p.chains[i].ids))
	copy(ids, p.chains[i].ids)
	return ids
}

// Len returns the number of planned fields.
func (p *Plan) Len() int {
	return len(p.chains)
}
