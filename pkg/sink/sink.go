// Package sink persists annotated documents.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir writes documents into a local directory.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Dir{root: root}, nil
}

// Put writes data under name and returns the file path. The write goes through a temp
// file so readers never see a partial document.
func (d *Dir) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = CleanName(name)
	path := filepath.Join(d.root, name)

	tmp, err := os.CreateTemp(d.root, "."+name+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return path, nil
}

// CleanName reduces name to a safe base file name.
func CleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}

// AnnotatedName derives the output name for an annotated copy of name.
func AnnotatedName(name string) string {
	name = CleanName(name)
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_highlighted.pdf"
}
