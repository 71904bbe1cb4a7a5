package store

import (
	"fmt"

	"github.com/linspirer/proxy/internal/models"
)

// ListTemplates returns every tactics template, newest first. Admin-only —
// the interception pipeline never reads this table.
func (s *Store) ListTemplates() ([]models.TacticsTemplate, error) {
	rows, err := s.conn.Query(`
		SELECT id, name, template_json, is_default, is_applied, created_at
		FROM tactics_templates ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	defer rows.Close()

	var out []models.TacticsTemplate
	for rows.Next() {
		var t models.TacticsTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.TemplateJSON, &t.IsDefault, &t.IsApplied, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTemplate inserts a new template, or updates json/default of the
// template that already has that name.
func (s *Store) UpsertTemplate(name, templateJSON string, isDefault bool) (int64, error) {
	templateJSON, err := canonicalizeJSON(templateJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.conn.QueryRow(`SELECT id FROM tactics_templates WHERE name = ?`, name).Scan(&id)
	if err == nil {
		_, err := s.conn.Exec(`
			UPDATE tactics_templates SET template_json = ?, is_default = ? WHERE id = ?
		`, templateJSON, isDefault, id)
		if err != nil {
			return 0, fmt.Errorf("store: update template: %w", err)
		}
		return id, nil
	}

	res, err := s.conn.Exec(`
		INSERT INTO tactics_templates (name, template_json, is_default, created_at) VALUES (?, ?, ?, ?)
	`, name, templateJSON, isDefault, shanghaiNow())
	if err != nil {
		return 0, fmt.Errorf("store: insert template: %w", err)
	}
	return res.LastInsertId()
}

// ApplyTemplate marks one template applied and every other one not applied,
// mirroring a single-active-template invariant.
func (s *Store) ApplyTemplate(id int64) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: apply template: %w", err)
	}
	if _, err := tx.Exec(`UPDATE tactics_templates SET is_applied = 0`); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: apply template: %w", err)
	}
	if _, err := tx.Exec(`UPDATE tactics_templates SET is_applied = 1 WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: apply template: %w", err)
	}
	return tx.Commit()
}

// SeedTemplates inserts any (name, json, isDefault) triples not already
// present, used to load tactics-seed.yaml at every start; names already in
// the table are left untouched.
func (s *Store) SeedTemplates(seeds []models.TacticsTemplate) error {
	for _, t := range seeds {
		var count int
		if err := s.conn.QueryRow(`SELECT COUNT(*) FROM tactics_templates WHERE name = ?`, t.Name).Scan(&count); err != nil {
			return fmt.Errorf("store: seed templates: %w", err)
		}
		if count > 0 {
			continue
		}
		canonJSON, err := canonicalizeJSON(t.TemplateJSON)
		if err != nil {
			return err
		}
		if _, err := s.conn.Exec(`
			INSERT INTO tactics_templates (name, template_json, is_default, created_at) VALUES (?, ?, ?, ?)
		`, t.Name, canonJSON, t.IsDefault, shanghaiNow()); err != nil {
			return fmt.Errorf("store: seed templates: %w", err)
		}
	}
	return nil
}
