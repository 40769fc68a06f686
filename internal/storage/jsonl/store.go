// Package jsonl implements an append-only JSON-lines result store on the local filesystem.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alymdu/shortest-plates/internal/plates"
)

// ErrEmptyPath is returned when no data file is configured.
var ErrEmptyPath = errors.New("data file path is required")

// maxLineBytes bounds a single record while scanning. Longer lines are skipped.
const maxLineBytes = 1 << 20

// legacyTimeLayout matches timestamps written without a zone offset.
const legacyTimeLayout = "2006-01-02T15:04:05"

// Config captures the parameters for the JSON-lines store.
type Config struct {
	// Path is the data file. It and its parent directories are created on first write.
	Path string `mapstructure:"data_file" yaml:"data_file"`
}

// Store appends one JSON object per line. Each record is written with a single
// write call on an O_APPEND handle so concurrent readers see whole lines or nothing.
type Store struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// record is the on-disk shape. checked_at is kept as a string so legacy
// zone-less timestamps still decode.
type record struct {
	Plate     string `json:"plate"`
	Status    string `json:"status"`
	Note      string `json:"note"`
	CheckedAt string `json:"checked_at"`
}

// New creates a Store for cfg.Path. The file is not touched until the first Append.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, ErrEmptyPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: filepath.Clean(cfg.Path), logger: logger}, nil
}

// Path returns the data file location.
func (s *Store) Path() string {
	return s.path
}

// Append validates obs and writes it as one line.
func (s *Store) Append(_ context.Context, obs plates.Observation) error {
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	line, err := encode(obs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.openLocked()
	if err != nil {
		return err
	}
	n, err := f.Write(line)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if n != len(line) {
		return fmt.Errorf("append record: short write (%d of %d bytes)", n, len(line))
	}
	return nil
}

// Scan reads every decodable record and returns them newest-first. Blank,
// malformed or partially written lines are skipped.
func (s *Store) Scan(ctx context.Context, limit int) ([]plates.Observation, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []plates.Observation{}, nil
		}
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close data file failed", zap.Error(cerr))
		}
	}()

	out := make([]plates.Observation, 0, 64)
	skipped := 0
	reader := bufio.NewReaderSize(f, 64*1024)
	var line []byte
	overlong := false
	for {
		chunk, rerr := reader.ReadSlice('\n')
		if !overlong {
			if len(line)+len(chunk) > maxLineBytes {
				overlong = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, fmt.Errorf("read data file: %w", rerr)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan canceled: %w", err)
		}

		if trimmed := bytes.TrimSpace(line); overlong {
			skipped++
		} else if len(trimmed) > 0 {
			if obs, ok := decode(trimmed); ok {
				out = append(out, obs)
			} else {
				skipped++
			}
		}
		line = line[:0]
		overlong = false
		if rerr != nil {
			break
		}
	}
	if skipped > 0 {
		s.logger.Debug("skipped malformed records", zap.Int("count", skipped), zap.String("path", s.path))
	}

	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases the append handle. Later appends reopen the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close data file: %w", err)
	}
	return nil
}

func (s *Store) openLocked() (*os.File, error) {
	if s.file != nil {
		return s.file, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	if err := terminateTornLine(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	s.file = f
	return f, nil
}

// terminateTornLine ends a final line left without a newline by an interrupted
// writer, so the next record starts on its own line.
func terminateTornLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read data file tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("terminate torn record: %w", err)
	}
	return nil
}

func encode(obs plates.Observation) ([]byte, error) {
	rec := record{
		Plate:     string(obs.Code),
		Status:    string(obs.Status),
		Note:      obs.Note,
		CheckedAt: obs.CheckedAt.Format(time.RFC3339),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return append(data, '\n'), nil
}

func decode(line []byte) (plates.Observation, bool) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return plates.Observation{}, false
	}
	checkedAt, ok := parseTime(rec.CheckedAt)
	if !ok {
		return plates.Observation{}, false
	}
	obs := plates.Observation{
		Code:      plates.Code(rec.Plate),
		Status:    plates.Status(rec.Status),
		Note:      rec.Note,
		CheckedAt: checkedAt,
	}
	if obs.Validate() != nil {
		return plates.Observation{}, false
	}
	return obs, true
}

func parseTime(raw string) (time.Time, bool) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}
	if ts, err := time.ParseInLocation(legacyTimeLayout, raw, time.Local); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
