package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/logging"
	"github.com/sitecraft/sitecraft/internal/packager"
	"github.com/sitecraft/sitecraft/internal/provider"
	"github.com/sitecraft/sitecraft/internal/publisher"
	"github.com/sitecraft/sitecraft/internal/registry"
	"github.com/sitecraft/sitecraft/internal/resolver"
	"github.com/sitecraft/sitecraft/internal/slugs"
	"github.com/sitecraft/sitecraft/internal/status"
)

// ErrMissingToken is returned when a deploy request carries no provider
// access token.
var ErrMissingToken = errors.New("provider access token is required")

// Application is the global runtime state container. It wires the registry,
// the build store and the pipeline components together and exposes the
// operations the HTTP layer calls. Pass Application into modules that need
// access to shared state rather than using package-level variables.
type Application struct {
	Config *Config
	Logger logging.Logger

	Registry  *registry.Registry
	Builds    *buildstore.Store
	Resolver  *resolver.Resolver
	Publisher *publisher.Publisher
	Slugs     *slugs.Resolver
	Status    *status.Tracker

	regDB *sql.DB

	jobs *jobRegistry

	// newClient builds a provider client for one deploy's access token.
	// Tests swap it for a fake.
	newClient func(accessToken string) (publisher.HostingClient, error)
}

// New constructs an Application from cfg, opening the registry database and
// the build store under cfg.StorageRoot.
func New(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("app: nil logger provided")
	}

	if err := os.MkdirAll(cfg.StorageRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	regDB, err := sql.Open("sqlite", filepath.Join(cfg.StorageRoot, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	reg, err := registry.NewRegistry(regDB, logger.With(logging.Field{Key: "component", Value: "registry"}))
	if err != nil {
		regDB.Close()
		return nil, err
	}

	builds, err := buildstore.NewStore(cfg.StorageRoot, logger.With(logging.Field{Key: "component", Value: "buildstore"}))
	if err != nil {
		regDB.Close()
		return nil, err
	}

	res, err := resolver.New(builds, logger.With(logging.Field{Key: "component", Value: "resolver"}))
	if err != nil {
		builds.Close()
		regDB.Close()
		return nil, err
	}

	pub, err := publisher.New(cfg.PublisherCfg, logger.With(logging.Field{Key: "component", Value: "publisher"}))
	if err != nil {
		builds.Close()
		regDB.Close()
		return nil, err
	}

	slugRes, err := slugs.New(builds, logger.With(logging.Field{Key: "component", Value: "slugs"}))
	if err != nil {
		builds.Close()
		regDB.Close()
		return nil, err
	}

	tracker, err := status.New(res, builds, logger.With(logging.Field{Key: "component", Value: "status"}))
	if err != nil {
		builds.Close()
		regDB.Close()
		return nil, err
	}

	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Builds:    builds,
		Resolver:  res,
		Publisher: pub,
		Slugs:     slugRes,
		Status:    tracker,
		regDB:     regDB,
		jobs:      newJobRegistry(cfg.JobRetention),
	}
	a.newClient = func(accessToken string) (publisher.HostingClient, error) {
		return provider.NewClient(provider.Config{
			BaseURL: cfg.ProviderBaseURL,
			Token:   accessToken,
		}, logger.With(logging.Field{Key: "component", Value: "provider"}), nil)
	}
	return a, nil
}

// Close releases the application's database handles.
func (a *Application) Close() error {
	var firstErr error
	if a.Builds != nil {
		if err := a.Builds.Close(); err != nil {
			firstErr = err
		}
	}
	if a.regDB != nil {
		if err := a.regDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CreateProject registers a new project for ownerID. An explicit slug must
// pass site-slug validation; when absent one is derived from the name.
func (a *Application) CreateProject(ctx context.Context, ownerID, slug, name, description string, framework registry.Framework) (*registry.Project, error) {
	if slug != "" {
		if err := slugs.Validate(slug); err != nil {
			return nil, err
		}
	}
	return a.Registry.CreateProject(ctx, ownerID, slug, name, description, framework)
}

// ListProjects returns the caller's projects.
func (a *Application) ListProjects(ctx context.Context, ownerID string) ([]registry.Project, error) {
	return a.Registry.ListProjects(ctx, ownerID)
}

// StartBuild opens a new generating build for the project.
func (a *Application) StartBuild(ctx context.Context, ownerID, projectIdentifier string) (*buildstore.BuildOutput, error) {
	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return nil, err
	}
	return a.Builds.CreateBuild(ctx, proj.ID)
}

// AppendBuildFile adds (or replaces) one file on a build the caller owns.
func (a *Application) AppendBuildFile(ctx context.Context, ownerID, projectIdentifier, buildID, path, content string) error {
	if _, err := a.ownedBuild(ctx, ownerID, projectIdentifier, buildID); err != nil {
		return err
	}
	return a.Builds.AppendFile(ctx, buildID, path, content)
}

// CompleteBuild marks a build the caller owns as complete.
func (a *Application) CompleteBuild(ctx context.Context, ownerID, projectIdentifier, buildID string) error {
	if _, err := a.ownedBuild(ctx, ownerID, projectIdentifier, buildID); err != nil {
		return err
	}
	return a.Builds.PromoteToComplete(ctx, buildID)
}

// ownedBuild resolves a build and verifies it belongs to a project the caller
// owns. Builds of other projects read as not found.
func (a *Application) ownedBuild(ctx context.Context, ownerID, projectIdentifier, buildID string) (*buildstore.BuildOutput, error) {
	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return nil, err
	}
	build, err := a.Builds.GetBuild(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if build.ProjectID != proj.ID {
		return nil, buildstore.ErrBuildNotFound
	}
	return build, nil
}

// DownloadArchive packages the latest usable build into a zip archive.
func (a *Application) DownloadArchive(ctx context.Context, ownerID, projectIdentifier string) (*packager.Archive, error) {
	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return nil, err
	}
	build, err := a.Resolver.Resolve(ctx, proj.ID)
	if err != nil {
		return nil, err
	}
	files, err := a.Builds.Files(ctx, build.ID)
	if err != nil {
		return nil, err
	}
	return packager.Package(proj.Name, files)
}

// Deploy resolves the latest usable build and publishes it to the hosting
// provider using the caller's access token. Non-preview deployments record
// the published site so staleness and slug availability reflect it.
func (a *Application) Deploy(ctx context.Context, ownerID, projectIdentifier, accessToken string, preview bool, progress publisher.Progress) (*provider.Deployment, error) {
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return nil, err
	}
	build, err := a.Resolver.Resolve(ctx, proj.ID)
	if err != nil {
		return nil, err
	}
	files, err := a.Builds.Files(ctx, build.ID)
	if err != nil {
		return nil, err
	}

	client, err := a.newClient(accessToken)
	if err != nil {
		return nil, err
	}

	deployment, err := a.Publisher.Publish(ctx, client, publisher.Request{
		ProjectName:  proj.Name,
		Framework:    proj.Framework,
		Files:        files,
		Preview:      preview,
		PreviewToken: build.PreviewToken,
	}, progress)
	if err != nil {
		return nil, err
	}

	if !preview {
		if _, err := a.Builds.SavePublishedSite(ctx, proj.ID, proj.Slug, deployment.URL, build.ID); err != nil {
			// The provider accepted the deployment; losing the local record
			// only degrades staleness reporting.
			a.Logger.Error("failed to record published site",
				logging.Field{Key: "project", Value: proj.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	return deployment, nil
}

// PublishStatus answers the public, token-gated staleness check.
func (a *Application) PublishStatus(ctx context.Context, projectIdentifier, token string) (*status.Status, error) {
	proj, err := a.Registry.GetProject(ctx, projectIdentifier)
	if err != nil {
		return nil, err
	}
	return a.Status.GetStatus(ctx, proj.ID, token)
}

// PublishDiff summarizes per-path changes between the published build and the
// latest usable build.
func (a *Application) PublishDiff(ctx context.Context, ownerID, projectIdentifier string) ([]status.PathChange, error) {
	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return nil, err
	}
	return a.Status.Diff(ctx, proj.ID)
}

// SlugAvailability reports whether slug can be claimed by the project. An
// optional custom domain is validated syntactically.
func (a *Application) SlugAvailability(ctx context.Context, ownerID, projectIdentifier, slug, domain string) (bool, string, error) {
	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return false, "", err
	}
	if domain != "" {
		if err := slugs.ValidateDomain(domain); err != nil {
			return false, "invalid custom domain", nil
		}
	}
	return a.Slugs.Check(ctx, proj.ID, slug)
}

// RemoveSite tombstones the project's published site.
func (a *Application) RemoveSite(ctx context.Context, ownerID, projectIdentifier string) error {
	proj, err := a.Registry.GetOwnedProject(ctx, projectIdentifier, ownerID)
	if err != nil {
		return err
	}
	return a.Builds.TombstoneSite(ctx, proj.ID)
}
