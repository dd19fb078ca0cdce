// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side
// effects.
package testutil

import (
	"context"
	"sync"

	"github.com/sitecraft/sitecraft/internal/logging"
	"github.com/sitecraft/sitecraft/internal/provider"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Hosting client ────────────────────────────────────────────────────

// FakeHostingClient implements publisher.HostingClient in memory. It records
// every upload by hash (treating repeats as conflicts, like the real
// provider) and fabricates a deployment URL from the request name.
type FakeHostingClient struct {
	mu       sync.Mutex
	uploaded map[string]bool

	// UploadErr / DeployErr, when set, are returned from the respective call.
	UploadErr error
	DeployErr error

	// Deployments records every deployment request received.
	Deployments []provider.DeploymentRequest
}

func (f *FakeHostingClient) UploadFile(ctx context.Context, data []byte) (*provider.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.UploadErr != nil {
		return nil, f.UploadErr
	}

	sha := provider.ContentHash(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = make(map[string]bool)
	}
	already := f.uploaded[sha]
	f.uploaded[sha] = true

	return &provider.UploadResult{SHA: sha, Size: len(data), AlreadyUploaded: already}, nil
}

func (f *FakeHostingClient) CreateDeployment(ctx context.Context, req provider.DeploymentRequest) (*provider.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.DeployErr != nil {
		return nil, f.DeployErr
	}

	f.mu.Lock()
	f.Deployments = append(f.Deployments, req)
	f.mu.Unlock()

	return &provider.Deployment{
		ID:  "dpl_" + req.Name,
		URL: "https://" + req.Name + ".example.app",
	}, nil
}

// UploadCount returns how many distinct hashes the fake has accepted.
func (f *FakeHostingClient) UploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploaded)
}
