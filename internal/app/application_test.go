package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/publisher"
	"github.com/sitecraft/sitecraft/internal/registry"
	"github.com/sitecraft/sitecraft/internal/resolver"
	"github.com/sitecraft/sitecraft/internal/slugs"
	"github.com/sitecraft/sitecraft/internal/status"
	"github.com/sitecraft/sitecraft/internal/testutil"
)

const testOwner = "user-1"

// newTestApp creates an Application over a TempDir with the hosting client
// swapped for an in-memory fake.
func newTestApp(t *testing.T) (*Application, *testutil.FakeHostingClient) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.JobRetention = 5 * time.Second

	a, err := New(cfg, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	fake := &testutil.FakeHostingClient{}
	a.newClient = func(accessToken string) (publisher.HostingClient, error) {
		return fake, nil
	}
	return a, fake
}

// completeBuild pushes a project through the write surface up to a complete
// build and returns the build.
func completeBuild(t *testing.T, a *Application, project string) *buildstore.BuildOutput {
	t.Helper()
	ctx := context.Background()

	b, err := a.StartBuild(ctx, testOwner, project)
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}
	if err := a.AppendBuildFile(ctx, testOwner, project, b.ID, "index.html", "<body>hi</body>"); err != nil {
		t.Fatalf("AppendBuildFile: %v", err)
	}
	if err := a.CompleteBuild(ctx, testOwner, project, b.ID); err != nil {
		t.Fatalf("CompleteBuild: %v", err)
	}
	return b
}

// ─── Projects ──────────────────────────────────────────────────────────

func TestCreateProject_RejectsInvalidSlug(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	_, err := a.CreateProject(context.Background(), testOwner, "-bad-", "Bad", "", registry.FrameworkNone)
	if !errors.Is(err, slugs.ErrInvalidSlug) {
		t.Errorf("expected ErrInvalidSlug, got %v", err)
	}
}

func TestCreateProject_AndList(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	p, err := a.CreateProject(ctx, testOwner, "acme", "Acme Landing", "", registry.FrameworkNextJS)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Slug != "acme" {
		t.Errorf("expected slug 'acme', got %q", p.Slug)
	}

	projects, err := a.ListProjects(ctx, testOwner)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(projects))
	}

	other, err := a.ListProjects(ctx, "someone-else")
	if err != nil {
		t.Fatalf("ListProjects other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no projects for other owner, got %d", len(other))
	}
}

// ─── Ownership ─────────────────────────────────────────────────────────

func TestStartBuild_RejectsNonOwner(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	_, err := a.StartBuild(ctx, "intruder", "acme")
	if !errors.Is(err, registry.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestAppendBuildFile_OtherProjectsBuildReadsAsNotFound(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := a.CreateProject(ctx, testOwner, "beta", "Beta", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	b, err := a.StartBuild(ctx, testOwner, "beta")
	if err != nil {
		t.Fatalf("StartBuild: %v", err)
	}

	err = a.AppendBuildFile(ctx, testOwner, "acme", b.ID, "index.html", "x")
	if !errors.Is(err, buildstore.ErrBuildNotFound) {
		t.Errorf("expected ErrBuildNotFound for cross-project build, got %v", err)
	}
}

// ─── Download ──────────────────────────────────────────────────────────

func TestDownloadArchive_NamesZipAfterSlug(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme Landing", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	completeBuild(t, a, "acme")

	arc, err := a.DownloadArchive(ctx, testOwner, "acme")
	if err != nil {
		t.Fatalf("DownloadArchive: %v", err)
	}
	if arc.Filename != "acme-landing-project.zip" {
		t.Errorf("unexpected archive name %q", arc.Filename)
	}
	if len(arc.Data) == 0 {
		t.Error("expected non-empty archive")
	}
}

func TestDownloadArchive_NoUsableBuild(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	_, err := a.DownloadArchive(ctx, testOwner, "acme")
	if !errors.Is(err, resolver.ErrNoUsableBuild) {
		t.Errorf("expected ErrNoUsableBuild, got %v", err)
	}
}

// ─── Deploy ────────────────────────────────────────────────────────────

func TestDeploy_RequiresToken(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	_, err := a.Deploy(context.Background(), testOwner, "acme", "", false, nil)
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestDeploy_PublishesAndRecordsSite(t *testing.T) {
	t.Parallel()
	a, fake := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme Landing", "", registry.FrameworkNextJS); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	b := completeBuild(t, a, "acme")

	dep, err := a.Deploy(ctx, testOwner, "acme", "tok_live", false, nil)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if dep.URL == "" || dep.ID == "" {
		t.Errorf("incomplete deployment %+v", dep)
	}
	if len(fake.Deployments) != 1 {
		t.Fatalf("expected 1 deployment request, got %d", len(fake.Deployments))
	}
	req := fake.Deployments[0]
	if req.Name != "acme-landing" {
		t.Errorf("unexpected deployment name %q", req.Name)
	}
	if req.Framework == nil || *req.Framework != "nextjs" {
		t.Errorf("unexpected framework %v", req.Framework)
	}

	// The publish is recorded, so the status check reads fresh.
	st, err := a.PublishStatus(ctx, "acme", b.PreviewToken)
	if err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if !st.Published || st.IsStale {
		t.Errorf("expected fresh published status, got %+v", st)
	}
}

func TestDeploy_PreviewDoesNotRecordSite(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	b := completeBuild(t, a, "acme")

	if _, err := a.Deploy(ctx, testOwner, "acme", "tok_live", true, nil); err != nil {
		t.Fatalf("Deploy preview: %v", err)
	}

	st, err := a.PublishStatus(ctx, "acme", b.PreviewToken)
	if err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if st.Published {
		t.Errorf("preview deploy must not mark project published, got %+v", st)
	}
}

func TestDeploy_NoUsableBuild(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	_, err := a.Deploy(ctx, testOwner, "acme", "tok_live", false, nil)
	if !errors.Is(err, resolver.ErrNoUsableBuild) {
		t.Errorf("expected ErrNoUsableBuild, got %v", err)
	}
}

// ─── Slug availability ─────────────────────────────────────────────────

func TestSlugAvailability_ExcludesOwnSite(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	completeBuild(t, a, "acme")
	if _, err := a.Deploy(ctx, testOwner, "acme", "tok", false, nil); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	// The same project may re-claim its own published slug.
	ok, _, err := a.SlugAvailability(ctx, testOwner, "acme", "acme", "")
	if err != nil {
		t.Fatalf("SlugAvailability: %v", err)
	}
	if !ok {
		t.Error("own slug should stay available to its project")
	}

	// A different project may not.
	if _, err := a.CreateProject(ctx, testOwner, "beta", "Beta", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	ok, reason, err := a.SlugAvailability(ctx, testOwner, "beta", "acme", "")
	if err != nil {
		t.Fatalf("SlugAvailability: %v", err)
	}
	if ok || reason == "" {
		t.Errorf("expected taken slug with reason, got ok=%v reason=%q", ok, reason)
	}
}

func TestSlugAvailability_InvalidDomain(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	ok, reason, err := a.SlugAvailability(ctx, testOwner, "acme", "acme", "no_dots")
	if err != nil {
		t.Fatalf("SlugAvailability: %v", err)
	}
	if ok || reason != "invalid custom domain" {
		t.Errorf("expected invalid-domain rejection, got ok=%v reason=%q", ok, reason)
	}
}

// ─── Site removal ──────────────────────────────────────────────────────

func TestRemoveSite_FreesSlugAndUnpublishes(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	b := completeBuild(t, a, "acme")
	if _, err := a.Deploy(ctx, testOwner, "acme", "tok", false, nil); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if err := a.RemoveSite(ctx, testOwner, "acme"); err != nil {
		t.Fatalf("RemoveSite: %v", err)
	}

	st, err := a.PublishStatus(ctx, "acme", b.PreviewToken)
	if err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if st.Published {
		t.Errorf("removed site must read unpublished, got %+v", st)
	}

	if _, err := a.CreateProject(ctx, testOwner, "beta", "Beta", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	ok, _, err := a.SlugAvailability(ctx, testOwner, "beta", "acme", "")
	if err != nil {
		t.Fatalf("SlugAvailability: %v", err)
	}
	if !ok {
		t.Error("tombstoned slug should be reclaimable")
	}
}

// ─── Publish diff ──────────────────────────────────────────────────────

func TestPublishDiff_NotPublished(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	completeBuild(t, a, "acme")

	_, err := a.PublishDiff(ctx, testOwner, "acme")
	if !errors.Is(err, status.ErrNotPublished) {
		t.Errorf("expected ErrNotPublished, got %v", err)
	}
}

// ─── Deploy jobs ───────────────────────────────────────────────────────

func TestStartDeployJob_TransitionsToDone(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	completeBuild(t, a, "acme")

	job, err := a.StartDeployJob(ctx, testOwner, "acme", "tok_live", false)
	if err != nil {
		t.Fatalf("StartDeployJob: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected non-empty job ID")
	}

	var sawProgress, sawResult bool
	for ev := range job.Events {
		switch ev.Type {
		case JobEventProgress:
			sawProgress = true
		case JobEventResult:
			sawResult = true
			if ev.URL == "" {
				t.Error("result event missing URL")
			}
		}
	}
	if !sawProgress || !sawResult {
		t.Errorf("expected progress and result events, got progress=%v result=%v", sawProgress, sawResult)
	}

	final := a.GetJob(job.ID)
	if final == nil {
		t.Fatal("job not found after completion")
	}
	if final.Status != JobDone {
		t.Errorf("expected status 'done', got %q (err: %s)", final.Status, final.Error)
	}
	if final.URL == "" || final.DeploymentID == "" {
		t.Errorf("expected result on job, got %+v", final)
	}
}

func TestStartDeployJob_FailsWithoutBuild(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, testOwner, "acme", "Acme", "", registry.FrameworkNone); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	job, err := a.StartDeployJob(ctx, testOwner, "acme", "tok_live", false)
	if err != nil {
		t.Fatalf("StartDeployJob: %v", err)
	}
	for range job.Events {
	}

	final := a.GetJob(job.ID)
	if final == nil {
		t.Fatal("job not found")
	}
	if final.Status != JobFailed {
		t.Errorf("expected status 'failed', got %q", final.Status)
	}
	if final.Error == "" {
		t.Error("expected error message on failed job")
	}
}

func TestGetJob_ReturnsNilForUnknown(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	if j := a.GetJob("nonexistent"); j != nil {
		t.Errorf("expected nil for unknown job, got %+v", j)
	}
}

func TestListJobs_EmptyInitially(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	if jobs := a.ListJobs(); len(jobs) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(jobs))
	}
}

func TestCancelJob_NoOpForUnknown(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)
	// Should not panic
	a.CancelJob("does-not-exist")
}

func TestJobRegistry_PrunesFinishedJobs(t *testing.T) {
	t.Parallel()

	r := newJobRegistry(time.Minute)
	r.set(&Job{ID: "old", Status: JobDone, EndedAt: time.Now().UTC().Add(-2 * time.Minute)})
	r.set(&Job{ID: "recent", Status: JobDone, EndedAt: time.Now().UTC()})
	r.set(&Job{ID: "running", Status: JobRunning})

	r.prune(time.Now().UTC())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs["old"]; ok {
		t.Error("expected old job to be pruned")
	}
	if _, ok := r.jobs["recent"]; !ok {
		t.Error("recent job should survive pruning")
	}
	if _, ok := r.jobs["running"]; !ok {
		t.Error("running job must never be pruned")
	}
}
