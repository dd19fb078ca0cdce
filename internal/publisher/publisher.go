// Package publisher pushes a build's files to the hosting provider and
// requests a deployment. Uploads are independent and content-addressed, so
// they run concurrently; deployment creation waits for every upload to settle
// before it is issued. There is no cleanup path: a failed or aborted publish
// leaves only hash-addressed uploads behind, and a retry re-sends the same
// hashes.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/logging"
	"github.com/sitecraft/sitecraft/internal/provider"
	"github.com/sitecraft/sitecraft/internal/registry"
	"github.com/sitecraft/sitecraft/internal/utils"
)

// HostingClient is the slice of the provider client the publisher needs.
// Satisfied by *provider.Client.
type HostingClient interface {
	UploadFile(ctx context.Context, data []byte) (*provider.UploadResult, error)
	CreateDeployment(ctx context.Context, req provider.DeploymentRequest) (*provider.Deployment, error)
}

// Config controls publish behavior.
type Config struct {
	// MaxConcurrency bounds parallel file uploads.
	MaxConcurrency int

	// BannerScriptURL, when set, is injected into HTML files of preview
	// deployments so the embedded status banner can query publish state.
	BannerScriptURL string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 4}
}

// Request describes one publish attempt.
type Request struct {
	// ProjectName is the project's display name; the deployment is created
	// under its slugified form.
	ProjectName string
	// Framework is the project's declared target framework.
	Framework registry.Framework
	// Files is the build's file set; must be non-empty (the resolver
	// contract refuses empty builds upstream).
	Files []buildstore.File
	// Preview marks preview deployments, which get the status banner
	// injected into HTML files before upload.
	Preview bool
	// PreviewToken is embedded alongside the banner so the deployed copy
	// can identify its build generation.
	PreviewToken string
}

// Progress is called after each file settles. It may be nil.
type Progress func(done, total int)

// Publisher orchestrates uploads and deployment creation.
type Publisher struct {
	cfg    Config
	logger logging.Logger
}

// New creates a Publisher.
func New(cfg Config, logger logging.Logger) (*Publisher, error) {
	if logger == nil {
		return nil, errors.New("publisher: nil logger provided")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Publisher{cfg: cfg, logger: logger}, nil
}

// Publish uploads every file and then creates a deployment. The first upload
// error aborts the attempt; uploads already accepted by the provider are left
// in place, which is safe because they are content-addressed.
func (p *Publisher) Publish(ctx context.Context, client HostingClient, req Request, progress Progress) (*provider.Deployment, error) {
	if client == nil {
		return nil, errors.New("publisher: nil hosting client")
	}
	if len(req.Files) == 0 {
		return nil, errors.New("publisher: no files to publish")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, p.cfg.MaxConcurrency)
		mu       sync.Mutex
		firstErr error
		done     int
		refs     = make([]provider.FileRef, len(req.Files))
	)

	total := len(req.Files)
	for i, f := range req.Files {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, f buildstore.File) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			content := []byte(f.Content)
			if req.Preview && p.cfg.BannerScriptURL != "" && isHTMLPath(f.Path) {
				content = injectBanner(content, p.cfg.BannerScriptURL, req.PreviewToken)
			}

			res, err := client.UploadFile(ctx, content)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("upload %s: %w", f.Path, err)
					cancel() // abort remaining uploads
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			refs[i] = provider.FileRef{File: f.Path, SHA: res.SHA, Size: res.Size}
			done++
			n := done
			mu.Unlock()

			if res.AlreadyUploaded {
				p.logger.Debug("content already on provider",
					logging.Field{Key: "path", Value: f.Path},
					logging.Field{Key: "sha", Value: res.SHA})
			}
			if progress != nil {
				progress(n, total)
			}
		}(i, f)
	}

	// Strict join: the deployment request enumerates every file reference,
	// so it cannot be issued while any upload is in flight.
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deployment, err := client.CreateDeployment(ctx, provider.DeploymentRequest{
		Name:      utils.Slugify(req.ProjectName),
		Files:     refs,
		Framework: provider.FrameworkSlug(req.Framework),
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("published build",
		logging.Field{Key: "name", Value: utils.Slugify(req.ProjectName)},
		logging.Field{Key: "files", Value: total},
		logging.Field{Key: "deployment_id", Value: deployment.ID})
	return deployment, nil
}
