package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/resolver"
	"github.com/sitecraft/sitecraft/internal/testutil"
)

func newFixture(t *testing.T) (*buildstore.Store, *resolver.Resolver) {
	t.Helper()

	store, err := buildstore.NewStore(t.TempDir(), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	res, err := resolver.New(store, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}
	return store, res
}

func TestResolver_NoBuilds(t *testing.T) {
	t.Parallel()
	_, res := newFixture(t)

	_, err := res.Resolve(context.Background(), "proj-1")
	if !errors.Is(err, resolver.ErrNoUsableBuild) {
		t.Errorf("expected ErrNoUsableBuild, got %v", err)
	}
}

func TestResolver_PrefersLatestComplete(t *testing.T) {
	t.Parallel()
	store, res := newFixture(t)
	ctx := context.Background()

	complete, _ := store.CreateBuild(ctx, "proj-1")
	_ = store.AppendFile(ctx, complete.ID, "index.html", "done")
	_ = store.PromoteToComplete(ctx, complete.ID)

	// A newer generating build must not shadow the complete one.
	generating, _ := store.CreateBuild(ctx, "proj-1")
	_ = store.AppendFile(ctx, generating.ID, "index.html", "in progress")

	got, err := res.Resolve(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != complete.ID {
		t.Errorf("expected complete build %s, got %s", complete.ID, got.ID)
	}
}

func TestResolver_PromotesInterruptedBuild(t *testing.T) {
	t.Parallel()
	store, res := newFixture(t)
	ctx := context.Background()

	interrupted, _ := store.CreateBuild(ctx, "proj-1")
	_ = store.AppendFile(ctx, interrupted.ID, "index.html", "<h1>Hi</h1>")

	got, err := res.Resolve(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != interrupted.ID {
		t.Fatalf("expected interrupted build to be recovered")
	}
	if got.Status != buildstore.StatusComplete {
		t.Errorf("expected promoted status complete, got %q", got.Status)
	}

	// Promotion is durable and idempotent: a second resolve takes the
	// complete path and returns the same row with the same files.
	again, err := res.Resolve(ctx, "proj-1")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if again.ID != interrupted.ID {
		t.Errorf("second resolve returned a different build")
	}
	if len(again.Files) != 1 || again.Files[0].Path != "index.html" {
		t.Errorf("file set changed across promotion: %+v", again.Files)
	}
}

func TestResolver_EmptyBuildsNeverSelected(t *testing.T) {
	t.Parallel()
	store, res := newFixture(t)
	ctx := context.Background()

	// Empty generating build.
	if _, err := store.CreateBuild(ctx, "proj-1"); err != nil {
		t.Fatalf("CreateBuild: %v", err)
	}
	// Empty complete build.
	emptyComplete, _ := store.CreateBuild(ctx, "proj-1")
	_ = store.PromoteToComplete(ctx, emptyComplete.ID)

	_, err := res.Resolve(ctx, "proj-1")
	if !errors.Is(err, resolver.ErrNoUsableBuild) {
		t.Errorf("expected ErrNoUsableBuild for empty builds, got %v", err)
	}
}
