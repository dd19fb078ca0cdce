package packager_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/packager"
)

func TestPackage_SingleFileArchive(t *testing.T) {
	t.Parallel()

	archive, err := packager.Package("Acme Landing", []buildstore.File{
		{Path: "index.html", Content: "<h1>Hi</h1>"},
	})
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	if archive.Filename != "acme-landing-project.zip" {
		t.Errorf("expected acme-landing-project.zip, got %q", archive.Filename)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(zr.File))
	}
	if zr.File[0].Name != "index.html" {
		t.Errorf("expected index.html entry, got %q", zr.File[0].Name)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(content) != "<h1>Hi</h1>" {
		t.Errorf("entry content mismatch: %q", content)
	}
}

func TestPackage_PreservesRelativePaths(t *testing.T) {
	t.Parallel()

	archive, err := packager.Package("demo", []buildstore.File{
		{Path: "index.html", Content: "a"},
		{Path: "assets/css/site.css", Content: "b"},
		{Path: "assets/js/app.js", Content: "c"},
	})
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	want := map[string]bool{
		"index.html":          false,
		"assets/css/site.css": false,
		"assets/js/app.js":    false,
	}
	for _, f := range zr.File {
		if _, ok := want[f.Name]; !ok {
			t.Errorf("unexpected entry %q", f.Name)
			continue
		}
		want[f.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing entry %q", name)
		}
	}
}

func TestPackage_EmptyInputRefused(t *testing.T) {
	t.Parallel()

	_, err := packager.Package("demo", nil)
	if !errors.Is(err, packager.ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
}
