// Package rules defines alert rules and the pattern matcher that runs
// them against message payloads.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternType selects how Pattern is matched against a payload.
type PatternType string

const (
	PatternRegex   PatternType = "regex"
	PatternKeyword PatternType = "keyword"
	PatternExact   PatternType = "exact"
)

// ActionType names a response an AlertRule can request when it matches.
type ActionType string

const (
	ActionStore   ActionType = "store"
	ActionDiscard ActionType = "discard"
	ActionWebhook ActionType = "webhook"
)

// AlertRule is immutable once loaded; Matcher never mutates one.
type AlertRule struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	PatternType PatternType  `yaml:"pattern_type"`
	Pattern     string       `yaml:"pattern"`
	Actions     []ActionType `yaml:"actions"`
	Enabled     bool         `yaml:"enabled"`
}

type fileFormat struct {
	Rules []ruleFile `yaml:"rules"`
}

type ruleFile struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	PatternType PatternType  `yaml:"pattern_type"`
	Pattern     string       `yaml:"pattern"`
	Actions     []ActionType `yaml:"actions"`
	Enabled     *bool        `yaml:"enabled"`
}

// LoadFile parses a rules YAML file. A rule with no explicit `enabled` key
// defaults to enabled, matching AlertRule's zero-value dataclass default
// in the original system.
func LoadFile(path string) ([]AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}

	rules := make([]AlertRule, 0, len(doc.Rules))
	for _, rf := range doc.Rules {
		enabled := true
		if rf.Enabled != nil {
			enabled = *rf.Enabled
		}
		rules = append(rules, AlertRule{
			ID:          rf.ID,
			Name:        rf.Name,
			PatternType: rf.PatternType,
			Pattern:     rf.Pattern,
			Actions:     dedupActions(rf.Actions),
			Enabled:     enabled,
		})
	}
	return rules, nil
}

// dedupActions preserves order while removing duplicate actions, since
// AlertRule.Actions is defined as a duplicate-free ordered set.
func dedupActions(actions []ActionType) []ActionType {
	seen := make(map[ActionType]struct{}, len(actions))
	out := make([]ActionType, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Matcher holds an immutable, already-filtered list of enabled rules with
// a non-empty pattern. It is race-free to read concurrently once built.
type Matcher struct {
	rules    []AlertRule
	compiled []*regexp.Regexp // parallel to rules; nil entries for non-regex rules
}

// NewMatcher filters rules down to those that can ever match (enabled,
// non-empty pattern) and pre-compiles any REGEX patterns. Rules whose
// regex fails to compile are dropped; rules with an unknown pattern type
// are kept but never match, since Match skips them.
func NewMatcher(all []AlertRule) *Matcher {
	m := &Matcher{}
	for _, r := range all {
		if !r.Enabled || r.Pattern == "" {
			continue
		}
		var re *regexp.Regexp
		if r.PatternType == PatternRegex {
			compiled, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				continue
			}
			re = compiled
		}
		m.rules = append(m.rules, r)
		m.compiled = append(m.compiled, re)
	}
	return m
}

// Match returns, in rule order, every rule whose pattern matches payload.
func (m *Matcher) Match(payload string) []AlertRule {
	var matched []AlertRule
	lowerPayload := strings.ToLower(payload)
	for i, r := range m.rules {
		switch r.PatternType {
		case PatternRegex:
			if m.compiled[i] != nil && m.compiled[i].MatchString(payload) {
				matched = append(matched, r)
			}
		case PatternKeyword:
			if strings.Contains(lowerPayload, strings.ToLower(r.Pattern)) {
				matched = append(matched, r)
			}
		case PatternExact:
			if r.Pattern == payload {
				matched = append(matched, r)
			}
		}
	}
	return matched
}
