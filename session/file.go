package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docqa/llm"
)

// FileRegistry keeps the latest session in a small text file.
// The first line is the session id, followed by key=value lines.
// A file holding only an id is accepted too.
type FileRegistry struct {
	path string
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry creates a registry backed by path, DefaultFile when empty
func NewFileRegistry(path string) *FileRegistry {
	if path == "" {
		path = DefaultFile
	}
	return &FileRegistry{path: path}
}

// Path returns the backing file
func (r *FileRegistry) Path() string {
	return r.path
}

// Register writes the record to a temp file and renames it over the old one
func (r *FileRegistry) Register(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(rec.ID + "\n")
	if rec.EmbeddingModel != "" {
		fmt.Fprintf(&b, "embedding_model=%s\n", rec.EmbeddingModel)
	}
	if rec.Mode != "" {
		fmt.Fprintf(&b, "mode=%s\n", rec.Mode)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "created_at=%s\n", rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Resolve reads the stored record
func (r *FileRegistry) Resolve(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: no session registered in %s", llm.ErrNotFound, r.path)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read session file: %w", err)
	}
	return parseRecord(string(data), r.path)
}

// Clear removes the file
func (r *FileRegistry) Clear(ctx context.Context) error {
	err := os.Remove(r.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func parseRecord(data, path string) (Record, error) {
	var rec Record
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if rec.ID == "" {
			rec.ID = line
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "embedding_model":
			rec.EmbeddingModel = strings.TrimSpace(value)
		case "mode":
			rec.Mode = llm.ParseMode(strings.TrimSpace(value))
		case "created_at":
			t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
			if err != nil {
				return Record{}, fmt.Errorf("invalid created_at in %s: %w", path, err)
			}
			rec.CreatedAt = t
		}
	}
	if err := scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("failed to parse session file: %w", err)
	}

	if rec.ID == "" {
		return Record{}, fmt.Errorf("%w: %s is empty", llm.ErrNotFound, path)
	}
	return rec, nil
}
