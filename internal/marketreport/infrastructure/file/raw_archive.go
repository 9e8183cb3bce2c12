package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aeso-report/internal/marketreport/application"
)

// RawArchive saves fetched report bodies as <begin>_<end>.<content type>.
type RawArchive struct {
	root string
}

// NewRawArchive constructs an archive rooted at dir.
func NewRawArchive(root string) (*RawArchive, error) {
	if root == "" {
		return nil, errors.New("raw archive: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &RawArchive{root: root}, nil
}

// SaveRaw writes the report body.
func (a *RawArchive) SaveRaw(ctx context.Context, report *application.RawReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report == nil {
		return errors.New("raw archive: nil report")
	}
	ext := report.ContentType
	if ext == "" {
		ext = application.ContentTypeCSV
	}
	name := fmt.Sprintf("%s_%s.%s", report.Range.Begin.Format("01022006"), report.Range.End.Format("01022006"), ext)
	return os.WriteFile(filepath.Join(a.root, name), report.Body, 0o644)
}
