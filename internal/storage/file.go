package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FileStore implements Storage as a flat text file with one chat ID per line.
type FileStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the file at path. The file is
// created on the first Add.
func NewFileStore(path string, log *slog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Add appends chatID as a new line.
func (s *FileStore) Add(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open subscribers file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", chatID); err != nil {
		_ = f.Close()
		return fmt.Errorf("append subscriber: %w", err)
	}
	return f.Close()
}

// List reads the file on every call. A missing file means no subscribers.
func (s *FileStore) List(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open subscribers file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var ids []int64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			s.log.Warn("skip malformed subscriber line", "path", s.path, "line", line, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read subscribers file: %w", err)
	}
	return unique(ids), nil
}

// Close is a no-op; the file is opened per call.
func (s *FileStore) Close() error {
	return nil
}
