// Package packager turns a build's file set into a single downloadable zip
// archive. It is a pure function of its input: no network, no persistence.
package packager

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zip"

	"github.com/sitecraft/sitecraft/internal/buildstore"
	"github.com/sitecraft/sitecraft/internal/utils"
)

// ErrNoFiles is returned when asked to package an empty file set. The
// resolver contract keeps this from happening on normal paths.
var ErrNoFiles = errors.New("no files to package")

// Archive is a packaged build ready to be served as an attachment.
type Archive struct {
	Data     []byte
	Filename string
}

// Package writes every file at its declared relative path into a zip archive
// named after the project's display name.
func Package(projectName string, files []buildstore.File) (*Archive, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range files {
		w, err := zw.Create(f.Path)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", f.Path, err)
		}
		if _, err := w.Write([]byte(f.Content)); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", f.Path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	return &Archive{
		Data:     buf.Bytes(),
		Filename: utils.ArchiveName(projectName),
	}, nil
}
