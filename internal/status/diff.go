package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/logging"
)

// ChangeType classifies a per-path difference between the published build and
// the latest complete build.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
	ChangeUpdated ChangeType = "updated"
)

// Chunk is one inserted or deleted span inside an updated file.
type Chunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// PathChange summarizes what happened to one path since the last publish.
type PathChange struct {
	Path   string     `json:"path"`
	Change ChangeType `json:"change"`
	Chunks []Chunk    `json:"chunks,omitempty"`
}

// Diff compares the published build's files against the latest complete
// build and returns per-path change summaries, sorted by path. Returns
// ErrNotPublished when the project has no live site.
func (t *Tracker) Diff(ctx context.Context, projectID string) ([]PathChange, error) {
	latest, err := t.resolver.Resolve(ctx, projectID)
	if err != nil {
		return nil, err
	}

	site, err := t.sites.CurrentSite(ctx, projectID)
	if err != nil {
		if errors.Is(err, buildstore.ErrSiteNotFound) {
			return nil, ErrNotPublished
		}
		return nil, fmt.Errorf("lookup published site: %w", err)
	}
	if site.Status == buildstore.SiteDeleted {
		return nil, ErrNotPublished
	}

	published, err := t.sites.GetBuild(ctx, site.BuildOutputID)
	if err != nil {
		return nil, fmt.Errorf("load published build: %w", err)
	}

	changes := diffFileSets(published.Files, latest.Files)

	t.logger.Debug("computed publish diff",
		logging.Field{Key: "project_id", Value: projectID},
		logging.Field{Key: "changes", Value: len(changes)})
	return changes, nil
}

func diffFileSets(published, latest []buildstore.File) []PathChange {
	was := make(map[string]string, len(published))
	for _, f := range published {
		was[f.Path] = f.Content
	}
	now := make(map[string]string, len(latest))
	for _, f := range latest {
		now[f.Path] = f.Content
	}

	var changes []PathChange
	for path, content := range now {
		old, existed := was[path]
		if !existed {
			changes = append(changes, PathChange{Path: path, Change: ChangeAdded})
			continue
		}
		if old != content {
			changes = append(changes, PathChange{
				Path:   path,
				Change: ChangeUpdated,
				Chunks: diffChunks(old, content),
			})
		}
	}
	for path := range was {
		if _, still := now[path]; !still {
			changes = append(changes, PathChange{Path: path, Change: ChangeRemoved})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// diffChunks computes character-level diffs between two file versions,
// cleaned up semantically, keeping only non-empty inserted/deleted spans.
func diffChunks(old, new string) []Chunk {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	chunks := make([]Chunk, 0)
	for _, d := range diffs {
		var chunkType string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			chunkType = "added"
		case diffmatchpatch.DiffDelete:
			chunkType = "removed"
		case diffmatchpatch.DiffEqual:
			continue
		}
		if strings.TrimSpace(d.Text) != "" {
			chunks = append(chunks, Chunk{Type: chunkType, Content: d.Text})
		}
	}
	return chunks
}
