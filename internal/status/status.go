// Package status answers, for an anonymous preview caller holding a build's
// preview token, whether the project is published and whether the published
// copy is current. The check is token-gated rather than session-gated because
// it is called cross-origin from a banner embedded inside a deployed preview
// site, which has no access to platform session cookies.
package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/logging"
)

var (
	// ErrInvalidToken means no usable build exists or the supplied token
	// does not match the latest build's preview token. Binding the check to
	// a specific build generation keeps a stale preview deployment from
	// querying status for a newer, unrelated build.
	ErrInvalidToken = errors.New("invalid preview token")

	// ErrNotPublished is returned by diff queries when the project has no
	// live published site.
	ErrNotPublished = errors.New("project is not published")
)

// BuildResolver yields the authoritative build for a project, recovering
// interrupted ones. Satisfied by *resolver.Resolver.
type BuildResolver interface {
	Resolve(ctx context.Context, projectID string) (*buildstore.BuildOutput, error)
}

// SiteSource is the slice of the build store the tracker needs.
type SiteSource interface {
	CurrentSite(ctx context.Context, projectID string) (*buildstore.PublishedSite, error)
	GetBuild(ctx context.Context, id string) (*buildstore.BuildOutput, error)
}

// Status is the answer to a publish-status query.
type Status struct {
	Published bool
	IsStale   bool
	URL       string
}

// Tracker maintains the association between a project's live site and the
// build it was published from.
type Tracker struct {
	resolver BuildResolver
	sites    SiteSource
	logger   logging.Logger
}

// New creates a Tracker.
func New(resolver BuildResolver, sites SiteSource, logger logging.Logger) (*Tracker, error) {
	if resolver == nil {
		return nil, errors.New("status: nil resolver provided")
	}
	if sites == nil {
		return nil, errors.New("status: nil site source provided")
	}
	if logger == nil {
		return nil, errors.New("status: nil logger provided")
	}
	return &Tracker{resolver: resolver, sites: sites, logger: logger}, nil
}

// GetStatus resolves the latest complete build, verifies the preview token
// against it, and reports whether the published site (if any) is current.
// A site with no row or a tombstone is "not published".
func (t *Tracker) GetStatus(ctx context.Context, projectID, token string) (*Status, error) {
	build, err := t.resolver.Resolve(ctx, projectID)
	if err != nil {
		// No usable build means the token cannot belong to anything current.
		return nil, ErrInvalidToken
	}
	if token == "" || build.PreviewToken != token {
		return nil, ErrInvalidToken
	}

	site, err := t.sites.CurrentSite(ctx, projectID)
	if err != nil {
		if errors.Is(err, buildstore.ErrSiteNotFound) {
			return &Status{Published: false}, nil
		}
		return nil, fmt.Errorf("lookup published site: %w", err)
	}
	if site.Status == buildstore.SiteDeleted {
		return &Status{Published: false}, nil
	}

	return &Status{
		Published: true,
		IsStale:   site.BuildOutputID != build.ID,
		URL:       site.URL,
	}, nil
}
