package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/multierr"
)

// Record is one unit of source text before chunking
type Record struct {
	Text     string
	Metadata map[string]any
}

// Load reads a single file and converts it into records.
// The source kind is resolved from the extension before the file is opened.
func Load(ctx context.Context, path string) ([]Record, error) {
	kind := KindFromPath(path)
	if !kind.Supported() {
		return nil, &UnsupportedSourceTypeError{Path: path}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch kind {
	case KindRecords:
		return parseRecords(path, data)
	case KindMarkdown:
		return parseMarkdown(data)
	case KindHTML:
		return parseHTML(data)
	default:
		return []Record{{Text: string(data), Metadata: map[string]any{}}}, nil
	}
}

// SupportedFiles lists every loadable file under dir, recursively, in lexical order.
func SupportedFiles(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	var files []string
	for _, m := range matches {
		if KindFromPath(m).Supported() {
			files = append(files, filepath.Join(dir, filepath.FromSlash(m)))
		}
	}
	slices.Sort(files)
	return files, nil
}

// LoadDir loads every supported file under dir and hands its records to fn.
// Unsupported files are skipped. A failing file does not stop the walk;
// all failures are returned together.
func LoadDir(ctx context.Context, dir string, fn func(path string, records []Record) error) error {
	files, err := SupportedFiles(dir)
	if err != nil {
		return err
	}

	var errs error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		records, err := Load(ctx, path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if err := fn(path, records); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errs
}
