package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitecraft/sitecraft/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNotOwner        = errors.New("caller does not own project")
)

// Registry manages project metadata in SQLite. It owns no build or publish
// state; those live in the build store.
type Registry struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRegistry returns a Registry and applies the schema.
// db should typically be the shared SQLite DB under the storage root.
func NewRegistry(db *sql.DB, logger logging.Logger) (*Registry, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Registry{db: db, logger: logger}, nil
}

// normalizeSlug makes a project slug safe and simple. Falls back to a random
// fragment when nothing survives normalization.
func normalizeSlug(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		out = uuid.New().String()[:8]
	}
	return out
}

// CreateProject inserts a new project for ownerID.
func (r *Registry) CreateProject(ctx context.Context, ownerID, slug, name, description string, framework Framework) (*Project, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if name == "" && slug != "" {
		name = slug
	}
	if slug == "" && name != "" {
		slug = normalizeSlug(name)
	} else {
		slug = normalizeSlug(slug)
	}
	if name == "" {
		name = slug
	}

	id := uuid.New().String()
	now := time.Now().Unix()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, slug, name, description, owner_id, framework, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, slug, name, description, ownerID, string(framework), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return &Project{
		ID:          id,
		Slug:        slug,
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		Framework:   framework,
		CreatedAt:   now,
	}, nil
}

// GetProject resolves a project either by slug or by id.
func (r *Registry) GetProject(ctx context.Context, identifier string) (*Project, error) {
	// First try slug
	p, err := r.scanProject(ctx, `SELECT id, slug, name, description, owner_id, framework, created_at
         FROM projects WHERE slug = ? LIMIT 1`, normalizeSlug(identifier))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}
	// Try as ID
	return r.scanProject(ctx, `SELECT id, slug, name, description, owner_id, framework, created_at
         FROM projects WHERE id = ? LIMIT 1`, identifier)
}

// GetOwnedProject resolves a project and verifies ownership. Returns
// ErrNotOwner when the project exists but belongs to someone else.
func (r *Registry) GetOwnedProject(ctx context.Context, identifier, ownerID string) (*Project, error) {
	p, err := r.GetProject(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return p, nil
}

// ListProjects returns all projects owned by ownerID, newest first.
func (r *Registry) ListProjects(ctx context.Context, ownerID string) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, slug, name, description, owner_id, framework, created_at
         FROM projects
         WHERE owner_id = ?
         ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var framework string
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.OwnerID, &framework, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Framework = Framework(framework)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetFramework updates the project's declared target framework.
func (r *Registry) SetFramework(ctx context.Context, projectID string, framework Framework) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET framework = ? WHERE id = ?`,
		string(framework), projectID,
	)
	if err != nil {
		return fmt.Errorf("update framework: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *Registry) scanProject(ctx context.Context, query string, arg string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	var p Project
	var framework string
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.OwnerID, &framework, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	p.Framework = Framework(framework)
	return &p, nil
}
