package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirSink writes each document to <dir>/<kind>/<key>.json and tracks what
// is already on disk
type DirSink struct {
	outputDir string
	written   map[string]bool
	mu        sync.RWMutex
}

// NewDirSink creates the output directory and indexes existing documents
func NewDirSink(outputDir string) (*DirSink, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	s := &DirSink{
		outputDir: outputDir,
		written:   make(map[string]bool),
	}
	if err := s.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return s, nil
}

func (s *DirSink) scanExistingFiles() error {
	kinds, err := os.ReadDir(s.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, k := range kinds {
		if !k.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.outputDir, k.Name()))
		if err != nil {
			return fmt.Errorf("failed to read directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".json")
			s.written[k.Name()+"/"+name] = true
		}
	}
	return nil
}

// fileName maps a key to a safe file name
func fileName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

// Path returns where the document for (kind, key) is stored
func (s *DirSink) Path(kind Kind, key string) string {
	return filepath.Join(s.outputDir, string(kind), fileName(key)+".json")
}

// Has reports whether a document for (kind, key) exists
func (s *DirSink) Has(kind Kind, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.written[string(kind)+"/"+fileName(key)]
}

// Write stores doc atomically, replacing any earlier version
func (s *DirSink) Write(kind Kind, key string, doc json.RawMessage) error {
	dir := filepath.Join(s.outputDir, string(kind))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	out, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = out.Write(doc)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write %s/%s: %w", kind, key, err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, s.Path(kind, key)); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.mu.Lock()
	s.written[string(kind)+"/"+fileName(key)] = true
	s.mu.Unlock()
	return nil
}

// Dir returns the output directory
func (s *DirSink) Dir() string {
	return s.outputDir
}

// Count returns the number of documents on disk
func (s *DirSink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.written)
}
