package eligibility

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

// RuleSet is an ordered rule table. Order decides which denial is reported.
type RuleSet []models.EligibilityRule

type ruleFile struct {
	Rules []models.EligibilityRule `yaml:"rules"`
}

// LoadRuleSet reads and validates a YAML rule table.
func LoadRuleSet(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return ParseRuleSet(raw)
}

// ParseRuleSet decodes a YAML rule table, assigning positions in file order.
func ParseRuleSet(raw []byte) (RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode rule file: %w", err)
	}
	rules := RuleSet(file.Rules)
	for i := range rules {
		rules[i].Position = i
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Validate rejects unknown kinds and rules missing their required fields.
func (rs RuleSet) Validate() error {
	var errs []error
	for i, rule := range rs {
		switch rule.Kind {
		case models.RuleBlockPrevious:
		case models.RuleRequiresPrevious:
			if rule.CourseCode == "" || rule.RequiredPreviousCode == "" {
				errs = append(errs, fmt.Errorf("rule %d: requires_previous needs course_code and required_previous_code", i))
			}
		case models.RuleExcludeDepartment:
			if rule.CourseCode == "" || rule.DepartmentID == "" {
				errs = append(errs, fmt.Errorf("rule %d: exclude_department needs course_code and department_id", i))
			}
		default:
			errs = append(errs, fmt.Errorf("rule %d: unknown kind %q", i, rule.Kind))
		}
	}
	return errors.Join(errs...)
}

// ForSession returns a copy stamped with sessionID and dense positions, ready
// to be stored.
func (rs RuleSet) ForSession(sessionID string) RuleSet {
	out := make(RuleSet, len(rs))
	for i, rule := range rs {
		rule.SessionID = sessionID
		rule.Position = i
		out[i] = rule
	}
	return out
}
