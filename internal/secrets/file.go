package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileProvider reads a flat JSON object of key → value, e.g. a mounted
// Kubernetes or Docker secret. The file is read once.
type FileProvider struct {
	path string
	data map[string]string
}

func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("file path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &FileProvider{path: path, data: data}, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(_ context.Context, key Key) (string, error) {
	if v, ok := p.data[string(key)]; ok {
		return v, nil
	}
	return "", ErrNotFound
}
