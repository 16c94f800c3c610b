package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "chainjobs/pkg/logx"
)

// fileStore appends JSON Lines to
//   - <prefix>.audit.jsonl
//   - <prefix>.runs.jsonl
type fileStore struct {
	log logx.Logger

	mu    sync.Mutex
	audit *os.File
	runs  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	af, err := openAppend(prefix + ".audit.jsonl")
	if err != nil {
		return nil, err
	}
	rf, err := openAppend(prefix + ".runs.jsonl")
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix))
	return &fileStore{log: log, audit: af, runs: rf}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.audit).Encode(e)
}

func (s *fileStore) AppendRun(_ context.Context, e RunEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.runs).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
		s.runs = nil
	}
	return errors.Join(errs...)
}
