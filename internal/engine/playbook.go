package engine

import (
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-resilience/internal/models"
)

// Playbook attaches operator recommendations to decisions from a YAML rule pack.
type Playbook struct {
	rules  []PlaybookRule
	logger *slog.Logger
}

// PlaybookRule is one recommendation rule. Every non-empty match field must hold.
type PlaybookRule struct {
	ID              string        `yaml:"id"`
	Match           PlaybookMatch `yaml:"match"`
	Recommendations []string      `yaml:"recommendations"`
}

// PlaybookMatch selects decisions. MinMode matches modes at or above the given severity.
type PlaybookMatch struct {
	Modes    []string `yaml:"modes"`
	MinMode  int      `yaml:"min_mode"`
	Violated []string `yaml:"violated"`
	Status   string   `yaml:"status"`
}

// PlaybookFile is the YAML root structure.
type PlaybookFile struct {
	Rules []PlaybookRule `yaml:"rules"`
}

// LoadPlaybook reads rules from path. An empty path or a missing file yields a nil playbook,
// which recommends nothing.
func LoadPlaybook(path string, logger *slog.Logger) (*Playbook, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var file PlaybookFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return NewPlaybook(file.Rules, logger), nil
}

// NewPlaybook builds a playbook from in-memory rules.
func NewPlaybook(rules []PlaybookRule, logger *slog.Logger) *Playbook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Playbook{rules: rules, logger: logger}
}

// Recommend returns the de-duplicated recommendations of every matching rule, in rule order.
func (p *Playbook) Recommend(decision models.DecisionResult, status models.SystemStatus) []string {
	if p == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range p.rules {
		m := rule.Match
		if len(m.Modes) > 0 && !modeListed(decision.Mode, m.Modes) {
			continue
		}
		if m.MinMode > 0 && int(decision.Mode) < m.MinMode {
			continue
		}
		if len(m.Violated) > 0 && !anyViolated(m.Violated, decision.Violated) {
			continue
		}
		if m.Status != "" && !strings.EqualFold(m.Status, string(status)) {
			continue
		}
		p.logger.Debug("playbook rule matched", slog.String("rule", rule.ID), slog.Int("mode", int(decision.Mode)))
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func modeListed(mode models.ResponseMode, names []string) bool {
	for _, name := range names {
		if strings.EqualFold(name, mode.String()) {
			return true
		}
	}
	return false
}

func anyViolated(wanted, violated []string) bool {
	for _, w := range wanted {
		if slices.ContainsFunc(violated, func(v string) bool { return strings.EqualFold(v, w) }) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
