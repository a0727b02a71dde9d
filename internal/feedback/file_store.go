package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps the log as JSON lines in a single file.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("feedback file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}, nil
}

func (s *FileStore) Append(_ context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening feedback file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(r); err != nil {
		return fmt.Errorf("writing feedback record: %w", err)
	}

	return nil
}

// List reads every record. Lines that do not decode are logged and skipped.
func (s *FileStore) List(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening feedback file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++

		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var r Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			s.logger.Warn("skipping malformed feedback line",
				zap.String("file", s.path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}

		if f.ContextID != "" && r.ContextID != f.ContextID {
			continue
		}
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading feedback file: %w", err)
	}

	return records, nil
}

func (s *FileStore) Close() error { return nil }
