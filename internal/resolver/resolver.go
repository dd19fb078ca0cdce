// Package resolver produces "the build to act on" for a project, recovering
// builds whose generation process was killed after writing files but before
// the record was marked complete. Promotion happens in place on read, so a
// transient generation timeout heals itself the next time anyone asks for the
// build.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/logging"
)

// ErrNoUsableBuild means no build with files exists in either state. Callers
// surface it as a not-found condition, not a server failure.
var ErrNoUsableBuild = errors.New("no usable build for project")

// BuildSource is the slice of the build store the resolver needs.
type BuildSource interface {
	LatestComplete(ctx context.Context, projectID string) (*buildstore.BuildOutput, error)
	LatestGenerating(ctx context.Context, projectID string) (*buildstore.BuildOutput, error)
	PromoteToComplete(ctx context.Context, id string) error
}

// Resolver finds the authoritative build for a project.
type Resolver struct {
	builds BuildSource
	logger logging.Logger
}

// New creates a Resolver.
func New(builds BuildSource, logger logging.Logger) (*Resolver, error) {
	if builds == nil {
		return nil, errors.New("resolver: nil build source provided")
	}
	if logger == nil {
		return nil, errors.New("resolver: nil logger provided")
	}
	return &Resolver{builds: builds, logger: logger}, nil
}

// Resolve returns the most recent complete build with files. When none exists
// it falls back to the most recent generating build with files and promotes
// it in place; an interrupted generation run is the expected failure mode
// here, not an exception. Empty builds are never selected regardless of
// status.
func (r *Resolver) Resolve(ctx context.Context, projectID string) (*buildstore.BuildOutput, error) {
	b, err := r.builds.LatestComplete(ctx, projectID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, buildstore.ErrBuildNotFound) {
		return nil, fmt.Errorf("lookup complete build: %w", err)
	}

	candidate, err := r.builds.LatestGenerating(ctx, projectID)
	if err != nil {
		if errors.Is(err, buildstore.ErrBuildNotFound) {
			return nil, ErrNoUsableBuild
		}
		return nil, fmt.Errorf("lookup generating build: %w", err)
	}

	if err := r.builds.PromoteToComplete(ctx, candidate.ID); err != nil {
		return nil, fmt.Errorf("promote build %s: %w", candidate.ID, err)
	}
	candidate.Status = buildstore.StatusComplete

	r.logger.Info("recovered interrupted build",
		logging.Field{Key: "project_id", Value: projectID},
		logging.Field{Key: "build_id", Value: candidate.ID},
		logging.Field{Key: "files", Value: len(candidate.Files)})

	return candidate, nil
}
