package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
)

// RuleRepository reads a session's eligibility rule table.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository constructs the repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListBySession returns rules in evaluation order.
func (r *RuleRepository) ListBySession(ctx context.Context, sessionID string) (eligibility.RuleSet, error) {
	const query = `SELECT session_id, position, kind, course_code, required_previous_code, department_id
FROM eligibility_rules WHERE session_id = $1 ORDER BY position`
	var rules eligibility.RuleSet
	if err := r.db.SelectContext(ctx, &rules, query, sessionID); err != nil {
		return nil, fmt.Errorf("list eligibility rules: %w", err)
	}
	return rules, nil
}

func replaceRulesTx(ctx context.Context, tx *sqlx.Tx, sessionID string, rules eligibility.RuleSet) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM eligibility_rules WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear eligibility rules: %w", err)
	}
	const insert = `INSERT INTO eligibility_rules (session_id, position, kind, course_code, required_previous_code, department_id)
VALUES ($1, $2, $3, $4, $5, $6)`
	for i, rule := range rules.ForSession(sessionID) {
		if _, err := tx.ExecContext(ctx, insert, sessionID, i, rule.Kind, rule.CourseCode, rule.RequiredPreviousCode, rule.DepartmentID); err != nil {
			return fmt.Errorf("insert eligibility rule: %w", err)
		}
	}
	return nil
}
