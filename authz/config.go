package authz

import (
	"chat-gateway/domain"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Commands      []string `yaml:"commands"`
	Pattern       string   `yaml:"pattern"`
	Authenticated bool     `yaml:"authenticated"`
}

// LoadRules reads an ordered rule list from a YAML file:
//
//	rules:
//	  - commands: [SUBSCRIBE]
//	    pattern: /topic/chat/**
//	    authenticated: true
//	  - pattern: "**"
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]Rule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		if entry.Pattern == "" {
			return nil, fmt.Errorf("rule %d has no pattern", i)
		}
		rule := Rule{Pattern: entry.Pattern, Authenticated: entry.Authenticated}
		for _, name := range entry.Commands {
			command, ok := domain.ParseCommand(name)
			if !ok {
				return nil, fmt.Errorf("rule %d: unknown command %q", i, name)
			}
			rule.Commands = append(rule.Commands, command)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
