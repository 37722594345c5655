package router

import (
	"fmt"
	"strings"
)

// Rule maps a path prefix to a backend name.
type Rule struct {
	Prefix  string
	Backend string
}

// Router resolves inbound paths to backend names using an ordered list
// of prefix rules. The rule list is immutable after construction;
// changing it means building a new Router.
type Router struct {
	rules []Rule
}

func New(rules []Rule) (*Router, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("no routing rules configured")
	}

	for i, rule := range rules {
		if !strings.HasPrefix(rule.Prefix, "/") {
			return nil, fmt.Errorf("rule %d: prefix %q must start with /", i, rule.Prefix)
		}
		if rule.Backend == "" {
			return nil, fmt.Errorf("rule %d: backend name is empty", i)
		}
	}

	owned := make([]Rule, len(rules))
	copy(owned, rules)

	return &Router{rules: owned}, nil
}

// Resolve returns the backend for the first rule whose prefix matches
// the path. Matching is case-sensitive plain prefix comparison; the
// method is accepted for interface completeness but rules match any
// method. When no rule matches, matched is false.
func (rt *Router) Resolve(method, path string) (string, bool) {
	for _, rule := range rt.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule.Backend, true
		}
	}
	return "", false
}

// Rules returns a copy of the rule list in evaluation order.
func (rt *Router) Rules() []Rule {
	out := make([]Rule, len(rt.rules))
	copy(out, rt.rules)
	return out
}
