package buildstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sitecraft/sitecraft/internal/buildstore/blob"
	"github.com/sitecraft/sitecraft/internal/logging"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// Store persists build outputs and published-site records. Metadata lives in
// SQLite; file contents go to a content-addressed blob store so identical
// content across builds is stored once.
//
// The store holds no business logic: selection and promotion rules are owned
// by the resolver, publish semantics by the publisher. Every write here is a
// single-row operation so callers can safely re-enter any flow.
type Store struct {
	db     *sql.DB
	blobs  *blob.Store
	logger logging.Logger
}

// NewStore opens (or creates) the store under storageRoot.
func NewStore(storageRoot string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		return nil, errors.New("buildstore: nil logger provided")
	}
	if storageRoot == "" {
		return nil, errors.New("buildstore: storage root is required")
	}

	if err := os.MkdirAll(storageRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(storageRoot, "builds.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	blobs, err := blob.NewStore(filepath.Join(storageRoot, "blobs"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	logger.Info("build store initialized", logging.Field{Key: "storage_root", Value: storageRoot})

	return &Store{db: db, blobs: blobs, logger: logger}, nil
}

// applySchema applies the SQLite schema and sets pragmas.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on locked database
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── BuildOutput ───────────────────────────────────────────────────────

// CreateBuild inserts a new BuildOutput for projectID in the generating state
// with a fresh preview token and no files.
func (s *Store) CreateBuild(ctx context.Context, projectID string) (*BuildOutput, error) {
	if projectID == "" {
		return nil, errors.New("project id is empty")
	}

	b := &BuildOutput{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Status:       StatusGenerating,
		PreviewToken: uuid.New().String(),
		CreatedAt:    time.Now().UnixNano(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_outputs (id, project_id, status, preview_token, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, string(b.Status), b.PreviewToken, b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert build: %w", err)
	}

	s.logger.Debug("created build",
		logging.Field{Key: "build_id", Value: b.ID},
		logging.Field{Key: "project_id", Value: projectID})
	return b, nil
}

// AppendFile adds (or overwrites) one file on a build. Content is stored in
// the blob store; the row records path, hash and size.
func (s *Store) AppendFile(ctx context.Context, buildID, path, content string) error {
	if path == "" {
		return errors.New("file path is empty")
	}

	hash, err := s.blobs.Put([]byte(content))
	if err != nil {
		return fmt.Errorf("store file content: %w", err)
	}

	// Next position for the build; ON CONFLICT keeps the original position
	// when a path is rewritten.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO build_files (build_id, position, path, blob_hash, size)
         VALUES (?,
                 (SELECT COALESCE(MAX(position) + 1, 0) FROM build_files WHERE build_id = ?),
                 ?, ?, ?)
         ON CONFLICT (build_id, path)
         DO UPDATE SET blob_hash = excluded.blob_hash, size = excluded.size`,
		buildID, buildID, path, hash, len(content),
	)
	if err != nil {
		return fmt.Errorf("insert build file %s: %w", path, err)
	}
	return nil
}

// GetBuild returns a build with its files loaded.
func (s *Store) GetBuild(ctx context.Context, id string) (*BuildOutput, error) {
	b, err := s.scanBuild(ctx,
		`SELECT id, project_id, status, preview_token, created_at
         FROM build_outputs WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	b.Files, err = s.Files(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// LatestComplete returns the most recent complete build with at least one
// file, or ErrBuildNotFound. Files are loaded.
func (s *Store) LatestComplete(ctx context.Context, projectID string) (*BuildOutput, error) {
	return s.latestWithFiles(ctx, projectID, StatusComplete)
}

// LatestGenerating returns the most recent generating build with at least one
// file, or ErrBuildNotFound. Files are loaded.
func (s *Store) LatestGenerating(ctx context.Context, projectID string) (*BuildOutput, error) {
	return s.latestWithFiles(ctx, projectID, StatusGenerating)
}

func (s *Store) latestWithFiles(ctx context.Context, projectID string, status BuildStatus) (*BuildOutput, error) {
	b, err := s.scanBuild(ctx,
		`SELECT b.id, b.project_id, b.status, b.preview_token, b.created_at
         FROM build_outputs b
         WHERE b.project_id = ? AND b.status = ?
           AND EXISTS (SELECT 1 FROM build_files f WHERE f.build_id = b.id)
         ORDER BY b.created_at DESC, b.rowid DESC
         LIMIT 1`,
		projectID, string(status))
	if err != nil {
		return nil, err
	}
	b.Files, err = s.Files(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// PromoteToComplete flips a build's status to complete in place. Promoting an
// already-complete build is a no-op; no new row is ever created.
func (s *Store) PromoteToComplete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE build_outputs SET status = ? WHERE id = ?`,
		string(StatusComplete), id,
	)
	if err != nil {
		return fmt.Errorf("promote build %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBuildNotFound
	}
	return nil
}

// Files returns a build's files in generation order, with content loaded from
// the blob store.
func (s *Store) Files(ctx context.Context, buildID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, blob_hash, size FROM build_files
         WHERE build_id = ? ORDER BY position ASC`,
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("list build files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		var hash string
		if err := rows.Scan(&f.Path, &hash, &f.Size); err != nil {
			return nil, err
		}
		content, err := s.blobs.Get(hash)
		if err != nil {
			return nil, fmt.Errorf("load content for %s: %w", f.Path, err)
		}
		f.Content = string(content)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) scanBuild(ctx context.Context, query string, args ...any) (*BuildOutput, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var b BuildOutput
	var status string
	if err := row.Scan(&b.ID, &b.ProjectID, &status, &b.PreviewToken, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBuildNotFound
		}
		return nil, err
	}
	b.Status = BuildStatus(status)
	return &b, nil
}

// ─── PublishedSite ─────────────────────────────────────────────────────

// SavePublishedSite records a publish as a new row. Earlier rows for the same
// project are retained; the newest row is the current one.
func (s *Store) SavePublishedSite(ctx context.Context, projectID, slug, url, buildOutputID string) (*PublishedSite, error) {
	site := &PublishedSite{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		Slug:          slug,
		URL:           url,
		BuildOutputID: buildOutputID,
		Status:        SiteLive,
		CreatedAt:     time.Now().UnixNano(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO published_sites (id, project_id, slug, url, build_output_id, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		site.ID, site.ProjectID, site.Slug, site.URL, site.BuildOutputID, string(site.Status), site.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert published site: %w", err)
	}

	s.logger.Info("recorded publish",
		logging.Field{Key: "project_id", Value: projectID},
		logging.Field{Key: "slug", Value: slug},
		logging.Field{Key: "build_id", Value: buildOutputID})
	return site, nil
}

// CurrentSite returns the most recent published-site row for a project,
// including tombstones; callers decide how to treat SiteDeleted. Returns
// ErrSiteNotFound when the project was never published.
func (s *Store) CurrentSite(ctx context.Context, projectID string) (*PublishedSite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, slug, url, build_output_id, status, created_at
         FROM published_sites
         WHERE project_id = ?
         ORDER BY rowid DESC
         LIMIT 1`,
		projectID,
	)
	var site PublishedSite
	var status string
	if err := row.Scan(&site.ID, &site.ProjectID, &site.Slug, &site.URL, &site.BuildOutputID, &status, &site.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}
	site.Status = SiteStatus(status)
	return &site, nil
}

// TombstoneSite logically deletes a project's published site by appending a
// deleted row. The slug history stays in the table for audit.
func (s *Store) TombstoneSite(ctx context.Context, projectID string) error {
	current, err := s.CurrentSite(ctx, projectID)
	if err != nil {
		return err
	}
	if current.Status == SiteDeleted {
		return nil // already tombstoned
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO published_sites (id, project_id, slug, url, build_output_id, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), projectID, current.Slug, current.URL, current.BuildOutputID,
		string(SiteDeleted), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("tombstone published site: %w", err)
	}

	s.logger.Info("tombstoned published site",
		logging.Field{Key: "project_id", Value: projectID},
		logging.Field{Key: "slug", Value: current.Slug})
	return nil
}

// SlugOwner returns the project id of another project whose current, live
// published site holds slug. Returns "" when the slug is free. The excluded
// project may always re-claim its own slug.
func (s *Store) SlugOwner(ctx context.Context, slug, excludeProjectID string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT p.project_id
         FROM published_sites p
         WHERE p.slug = ? AND p.project_id <> ? AND p.status = ?
           AND p.rowid = (SELECT MAX(rowid) FROM published_sites WHERE project_id = p.project_id)
         LIMIT 1`,
		slug, excludeProjectID, string(SiteLive),
	)
	var owner string
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return owner, nil
}
