package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/linspirer/proxy/internal/models"
)

// ValidationError is returned by CreateRule/UpdateRule when the rule fails
// the closed-set action check or the custom_response requirement. Callers
// (the admin API) map it to an HTTP 400.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

var validActions = map[string]bool{
	"passthrough":             true,
	"modify":                  true,
	"replace":                 true,
	"randomize_app_duration":  true,
}

// validateRule enforces the closed set of actions and the custom_response
// requirement for replace/modify.
func validateRule(r models.InterceptionRule) error {
	if !validActions[r.Action] {
		return ValidationError(fmt.Sprintf("action must be one of passthrough, modify, replace, randomize_app_duration, got %q", r.Action))
	}
	if (r.Action == "replace" || r.Action == "modify") && r.CustomResponse == "" {
		return ValidationError(fmt.Sprintf("custom_response is required for action %q", r.Action))
	}
	return nil
}

// FindRule resolves the interception rule that applies to method for email,
// preferring a user-scoped rule (non-global, email present in the rule's
// comma-separated allow-list) over a global rule (is_global, no email),
// among enabled rules only, newest first.
func (s *Store) FindRule(method, email string) (*models.InterceptionRule, error) {
	rows, err := s.conn.Query(`
		SELECT id, method_name, action, custom_response, email, is_global, is_enabled, remark, created_at, updated_at
		FROM interception_rules
		WHERE method_name = ? AND is_enabled = 1
		ORDER BY created_at DESC
	`, method)
	if err != nil {
		return nil, fmt.Errorf("store: find rule: %w", err)
	}
	defer rows.Close()

	var candidates []models.InterceptionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find rule: %w", err)
	}

	for _, r := range candidates {
		if r.IsGlobal || r.Email == "" {
			continue
		}
		for _, e := range strings.Split(r.Email, ",") {
			if strings.TrimSpace(e) == email && email != "" {
				rc := r
				return &rc, nil
			}
		}
	}

	for _, r := range candidates {
		if r.IsGlobal && r.Email == "" {
			rc := r
			return &rc, nil
		}
	}

	return nil, nil
}

// ListRules returns every rule, newest first.
func (s *Store) ListRules() ([]models.InterceptionRule, error) {
	rows, err := s.conn.Query(`
		SELECT id, method_name, action, custom_response, email, is_global, is_enabled, remark, created_at, updated_at
		FROM interception_rules ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.InterceptionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// FindRuleByID fetches a single rule. Returns nil, nil if not found.
func (s *Store) FindRuleByID(id int64) (*models.InterceptionRule, error) {
	row := s.conn.QueryRow(`
		SELECT id, method_name, action, custom_response, email, is_global, is_enabled, remark, created_at, updated_at
		FROM interception_rules WHERE id = ?
	`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find rule by id: %w", err)
	}
	return &r, nil
}

// CreateRule inserts a rule, upserting onto an existing (method_name, email)
// pair the way the original admin UI does — callers add a new rule by
// calling this even when one already matches.
func (s *Store) CreateRule(r models.InterceptionRule) (int64, error) {
	if r.IsGlobal {
		r.Email = ""
	}
	if err := validateRule(r); err != nil {
		return 0, err
	}
	canonResponse, err := canonicalizeJSON(r.CustomResponse)
	if err != nil {
		return 0, err
	}
	r.CustomResponse = canonResponse

	existing, err := s.findByMethodAndEmail(r.MethodName, r.Email, r.IsGlobal)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		r.ID = existing.ID
		if err := s.UpdateRule(r); err != nil {
			return 0, err
		}
		return existing.ID, nil
	}

	now := shanghaiNow()
	res, err := s.conn.Exec(`
		INSERT INTO interception_rules (method_name, action, custom_response, email, is_global, is_enabled, remark, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
	`, r.MethodName, r.Action, r.CustomResponse, nullable(r.Email), r.IsGlobal, nullable(r.Remark), now, now)
	if err != nil {
		return 0, fmt.Errorf("store: create rule: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRule writes every field of r over the existing row with id r.ID.
func (s *Store) UpdateRule(r models.InterceptionRule) error {
	if r.IsGlobal {
		r.Email = ""
	}
	if err := validateRule(r); err != nil {
		return err
	}
	canonResponse, err := canonicalizeJSON(r.CustomResponse)
	if err != nil {
		return err
	}
	r.CustomResponse = canonResponse
	res, err := s.conn.Exec(`
		UPDATE interception_rules
		SET method_name = ?, action = ?, custom_response = ?, email = ?, is_global = ?, is_enabled = ?, remark = ?, updated_at = ?
		WHERE id = ?
	`, r.MethodName, r.Action, r.CustomResponse, nullable(r.Email), r.IsGlobal, r.IsEnabled, nullable(r.Remark), shanghaiNow(), r.ID)
	if err != nil {
		return fmt.Errorf("store: update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: update rule: no rule with id %d", r.ID)
	}
	return nil
}

// DeleteRule removes the rule with the given id.
func (s *Store) DeleteRule(id int64) error {
	res, err := s.conn.Exec(`DELETE FROM interception_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: delete rule: no rule with id %d", id)
	}
	return nil
}

func (s *Store) findByMethodAndEmail(method, email string, isGlobal bool) (*models.InterceptionRule, error) {
	var row *sql.Row
	if isGlobal {
		row = s.conn.QueryRow(`
			SELECT id, method_name, action, custom_response, email, is_global, is_enabled, remark, created_at, updated_at
			FROM interception_rules WHERE method_name = ? AND is_global = 1
		`, method)
	} else {
		row = s.conn.QueryRow(`
			SELECT id, method_name, action, custom_response, email, is_global, is_enabled, remark, created_at, updated_at
			FROM interception_rules WHERE method_name = ? AND email = ?
		`, method, email)
	}
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by method and email: %w", err)
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (models.InterceptionRule, error) {
	var r models.InterceptionRule
	var customResponse, email, remark sql.NullString
	err := row.Scan(&r.ID, &r.MethodName, &r.Action, &customResponse, &email, &r.IsGlobal, &r.IsEnabled, &remark, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.CustomResponse = customResponse.String
	r.Email = email.String
	r.Remark = remark.String
	return r, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
