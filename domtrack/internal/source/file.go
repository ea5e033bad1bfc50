package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// File reads a page from disk and reports writes to it. The parent
// directory is watched so editors that replace the file are seen too.
type File struct {
	path   string
	logger *slog.Logger
}

// NewFile returns a File source for path.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

func (f *File) Fetch(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", f.path, err)
	}
	return data, nil
}

func (f *File) Watch(ctx context.Context, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("source: fsnotify: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(f.path)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("source: watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("source: fsnotify error", "path", f.path, "error", err)
		}
	}
}

func (f *File) Close() error { return nil }
