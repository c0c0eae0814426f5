package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	templates "fieldops-cloud/internal/templates/domain"
)

// TemplateRepository persists command templates in Postgres.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository constructs a repository.
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetTemplateByName loads a template; nil when missing.
func (r *TemplateRepository) GetTemplateByName(ctx context.Context, name string) (*templates.CommandTemplate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("template repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT name, display_name, description, body, category, variables,
	is_default, is_active, required_role, created_at, updated_at
FROM command_templates
WHERE name = $1`, name)
	return scanTemplate(row)
}

// Save upserts a template.
func (r *TemplateRepository) Save(ctx context.Context, tpl *templates.CommandTemplate) error {
	if r == nil || r.db == nil {
		return errors.New("template repo: nil db")
	}
	if tpl == nil || tpl.Name == "" {
		return templates.ErrEmptyName
	}
	variables, err := json.Marshal(tpl.Variables)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO command_templates (
	name, display_name, description, body, category, variables,
	is_default, is_active, required_role, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (name) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	description = EXCLUDED.description,
	body = EXCLUDED.body,
	category = EXCLUDED.category,
	variables = EXCLUDED.variables,
	is_default = EXCLUDED.is_default,
	is_active = EXCLUDED.is_active,
	required_role = EXCLUDED.required_role,
	updated_at = EXCLUDED.updated_at`,
		tpl.Name, tpl.DisplayName, tpl.Description, tpl.Body, string(tpl.Category), variables,
		tpl.IsDefault, tpl.IsActive, tpl.RequiredRole, tpl.CreatedAt, tpl.UpdatedAt)
	return err
}

// List returns templates ordered by name, filtered by category when set.
func (r *TemplateRepository) List(ctx context.Context, category templates.Category) ([]templates.CommandTemplate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("template repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT name, display_name, description, body, category, variables,
	is_default, is_active, required_role, created_at, updated_at
FROM command_templates
WHERE $1 = '' OR category = $1
ORDER BY name ASC`, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []templates.CommandTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a template.
func (r *TemplateRepository) Delete(ctx context.Context, name string) error {
	if r == nil || r.db == nil {
		return errors.New("template repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM command_templates WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if count, _ := result.RowsAffected(); count == 0 {
		return templates.ErrTemplateNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*templates.CommandTemplate, error) {
	var tpl templates.CommandTemplate
	var category string
	var variables []byte
	var description sql.NullString
	var requiredRole sql.NullString
	if err := row.Scan(
		&tpl.Name,
		&tpl.DisplayName,
		&description,
		&tpl.Body,
		&category,
		&variables,
		&tpl.IsDefault,
		&tpl.IsActive,
		&requiredRole,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tpl.Category = templates.Category(category)
	tpl.Description = description.String
	tpl.RequiredRole = requiredRole.String
	tpl.Variables = map[string]templates.VariableSpec{}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &tpl.Variables); err != nil {
			return nil, err
		}
	}
	tpl.CreatedAt = tpl.CreatedAt.UTC()
	tpl.UpdatedAt = tpl.UpdatedAt.UTC()
	return &tpl, nil
}
