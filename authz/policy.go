// Package authz evaluates destination based authorization rules.
// Evaluation is first match, not longest match: rules keep the order they
// were configured in, more specific patterns go first.
package authz

import (
	"chat-gateway/domain"
	"chat-gateway/errors"
	"fmt"

	"github.com/samber/lo"
)

// Rule matches a frame by command and destination pattern.
// An empty Commands list matches every command.
type Rule struct {
	Commands      []domain.Command
	Pattern       string
	Authenticated bool
}

func (r Rule) matches(command domain.Command, destination string) bool {
	if len(r.Commands) > 0 && !lo.Contains(r.Commands, command) {
		return false
	}
	return Match(r.Pattern, destination)
}

func (r Rule) catchAll() bool {
	return len(r.Commands) == 0 && (r.Pattern == "**" || r.Pattern == "/**")
}

type Decision struct {
	Allow     bool
	RuleIndex int
}

// Policy is read-only once built and safe for concurrent use without locking.
type Policy struct {
	rules []Rule
}

// NewPolicy refuses rule lists that are not total: the last rule must match everything.
func NewPolicy(rules []Rule) (*Policy, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("authorization policy has no rules")
	}
	if !rules[len(rules)-1].catchAll() {
		return nil, fmt.Errorf("authorization policy must end with a catch-all rule, got %q", rules[len(rules)-1].Pattern)
	}
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Policy{rules: copied}, nil
}

func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// Evaluate returns the decision of the first matching rule.
func (p *Policy) Evaluate(command domain.Command, destination string, identity *domain.Identity) Decision {
	for i, rule := range p.rules {
		if !rule.matches(command, destination) {
			continue
		}
		return Decision{Allow: !rule.Authenticated || identity != nil, RuleIndex: i}
	}
	// Unreachable with a catch-all, kept closed anyway.
	return Decision{Allow: false, RuleIndex: -1}
}

// Check turns a deny into ErrDenied.
func (p *Policy) Check(frame domain.Frame) error {
	decision := p.Evaluate(frame.Command, frame.Destination, frame.Identity)
	if decision.Allow {
		return nil
	}
	return fmt.Errorf("%w: %s %s", errors.ErrDenied, frame.Command, frame.Destination)
}

var anyMessage = []domain.Command(nil)

// DefaultRules is the gateway policy. /topic/chat/** requires authentication.
func DefaultRules() []Rule {
	subscribe := []domain.Command{domain.SUBSCRIBE}
	return []Rule{
		{Commands: []domain.Command{domain.OPEN}, Pattern: "**", Authenticated: false},
		{Commands: anyMessage, Pattern: "/app/**", Authenticated: true},
		{Commands: subscribe, Pattern: "/user/queue/chat/**", Authenticated: true},
		{Commands: subscribe, Pattern: "/user/queue/**", Authenticated: true},
		{Commands: subscribe, Pattern: "/topic/user/**", Authenticated: true},
		{Commands: subscribe, Pattern: "/user/**", Authenticated: true},
		{Commands: subscribe, Pattern: "/queue/**", Authenticated: true},
		{Commands: subscribe, Pattern: "/topic/chat/**", Authenticated: true},
		{Commands: []domain.Command{domain.SEND}, Pattern: "**", Authenticated: true},
		{Commands: anyMessage, Pattern: "**", Authenticated: false},
	}
}
