// Package loader provides document loading adapters.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// DefaultPattern matches PDFs directly inside the directory.
const DefaultPattern = "*.pdf"

// DirectoryLoader loads every file of a directory that matches a glob
// pattern, using parser for extraction. Matching ignores case, so
// "*.pdf" also accepts "REPORT.PDF"; "**/*.pdf" descends into subdirectories.
type DirectoryLoader struct {
	parser  ports.DocumentParser
	pattern string
}

// NewDirectoryLoader creates a loader. An empty pattern means DefaultPattern.
func NewDirectoryLoader(parser ports.DocumentParser, pattern string) *DirectoryLoader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &DirectoryLoader{parser: parser, pattern: strings.ToLower(pattern)}
}

// LoadDirectory parses matching files in lexical path order. Any file that
// cannot be parsed fails the whole load.
func (l *DirectoryLoader) LoadDirectory(ctx context.Context, dir string) ([]entities.Document, error) {
	paths, err := l.Match(dir)
	if err != nil {
		return nil, err
	}

	docs := make([]entities.Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.load(ctx, path)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded %s (%d pages)", doc.Name, len(doc.Pages))
		docs = append(docs, doc)
	}
	return docs, nil
}

// Match returns the files of dir matching the pattern, sorted.
func (l *DirectoryLoader) Match(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: directory %s does not exist", entities.ErrNotFound, dir)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", entities.ErrNotFound, dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if ok, _ := doublestar.Match(l.pattern, strings.ToLower(filepath.ToSlash(rel))); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files matching %q in %s", entities.ErrNotFound, l.pattern, dir)
	}
	sort.Strings(paths)
	return paths, nil
}

func (l *DirectoryLoader) load(ctx context.Context, path string) (entities.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return entities.Document{}, err
	}
	pages, err := l.parser.ParsePages(ctx, path)
	if err != nil {
		return entities.Document{}, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
	}
	return entities.Document{
		Name:       filepath.Base(path),
		Path:       path,
		Pages:      pages,
		ModifiedAt: info.ModTime(),
	}, nil
}
