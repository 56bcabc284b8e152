// Package rules implements the deterministic policy-rule scanner. Rules are
// loaded and compiled once at startup; a malformed ruleset fails fast and
// never reaches scan time.
package rules

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
)

// RuleLoadError reports a ruleset that failed to load or compile.
type RuleLoadError struct {
	Rule string
	Err  error
}

func (e *RuleLoadError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("rule '%s' failed to load: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("ruleset failed to load: %v", e.Err)
}

func (e *RuleLoadError) Unwrap() error { return e.Err }

type RuleSpec struct {
	Name          string `toml:"name"`
	Pattern       string `toml:"pattern"`
	Action        string `toml:"action"`
	Replacement   string `toml:"replacement"`
	Severity      string `toml:"severity"`
	Category      string `toml:"category"`
	Description   string `toml:"description"`
	CaseSensitive bool   `toml:"case_sensitive"`
}

type ruleFile struct {
	Rules []RuleSpec `toml:"rule"`
}

// Rule is a compiled policy rule. DeclIdx preserves declaration order for
// the overlap tie-break.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Kind        model.EditKind
	Replacement string
	Severity    model.Severity
	Category    string
	Description string
	DeclIdx     int
}

// Set is a compiled, immutable ruleset.
type Set struct {
	Rules []Rule
}

// Load reads and compiles a TOML ruleset from disk.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RuleLoadError{Err: fmt.Errorf("failed to read rules file '%s': %w", path, err)}
	}
	var rf ruleFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, &RuleLoadError{Err: fmt.Errorf("failed to parse TOML: %w", err)}
	}
	return Compile(rf.Rules)
}

// Compile validates and compiles rule specs into a Set.
func Compile(specs []RuleSpec) (*Set, error) {
	if len(specs) == 0 {
		return nil, &RuleLoadError{Err: fmt.Errorf("ruleset is empty")}
	}

	set := &Set{}
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, &RuleLoadError{Rule: fmt.Sprintf("#%d", i), Err: fmt.Errorf("rule has no name")}
		}
		if spec.Pattern == "" {
			return nil, &RuleLoadError{Rule: spec.Name, Err: fmt.Errorf("rule has no pattern")}
		}

		kind, err := parseAction(spec.Action)
		if err != nil {
			return nil, &RuleLoadError{Rule: spec.Name, Err: err}
		}
		if kind == model.KindReplace || kind == model.KindInsertAfter || kind == model.KindInsertInline {
			if spec.Replacement == "" {
				return nil, &RuleLoadError{Rule: spec.Name, Err: fmt.Errorf("action '%s' requires a replacement", spec.Action)}
			}
		}

		sev := model.Severity(spec.Severity)
		if !sev.Valid() {
			return nil, &RuleLoadError{Rule: spec.Name, Err: fmt.Errorf("unknown severity '%s'", spec.Severity)}
		}

		pattern := spec.Pattern
		if !spec.CaseSensitive {
			pattern = "(?i:" + pattern + ")"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &RuleLoadError{Rule: spec.Name, Err: fmt.Errorf("invalid pattern: %w", err)}
		}

		set.Rules = append(set.Rules, Rule{
			Name:        spec.Name,
			Pattern:     re,
			Kind:        kind,
			Replacement: spec.Replacement,
			Severity:    sev,
			Category:    spec.Category,
			Description: spec.Description,
			DeclIdx:     i,
		})
	}
	return set, nil
}

func parseAction(action string) (model.EditKind, error) {
	switch action {
	case "delete":
		return model.KindDelete, nil
	case "replace":
		return model.KindReplace, nil
	case "insert-after":
		return model.KindInsertAfter, nil
	case "insert-inline":
		return model.KindInsertInline, nil
	default:
		return "", fmt.Errorf("unknown action '%s'", action)
	}
}
