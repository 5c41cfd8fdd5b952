package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"opsnotify/internal/notify"
	logx "opsnotify/pkg/logx"
)

const fileCompactEvery = 200

// fileStore keeps channels in memory and persists them as:
//   - <prefix>.channels.snapshot.json (compacted state)
//   - <prefix>.channels.journal.jsonl (append-only puts and deletes)
//
// The journal is compacted into the snapshot every fileCompactEvery writes
// and on Close.
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	mem      map[string]notify.ChannelConfig
	snapPath string
	journal  *os.File
	writes   int
}

type journalRecord struct {
	Op      string                `json:"op"` // "put" or "delete"
	ID      string                `json:"id"`
	Channel *notify.ChannelConfig `json:"channel,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".channels.snapshot.json"
	journalPath := prefix + ".channels.journal.jsonl"

	mem := map[string]notify.ChannelConfig{}
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	skipped, err := replayJournal(journalPath, mem)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped corrupt journal records", logx.String("path", journalPath), logx.Int("count", skipped))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", snapPath), logx.Int("channels", len(mem)))
	return &fileStore{log: log, mem: mem, snapPath: snapPath, journal: jf}, nil
}

func (s *fileStore) ListChannelsForEvent(_ context.Context, kind notify.EventKind) ([]notify.ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	out := make([]notify.ChannelConfig, 0, len(s.mem))
	for _, c := range s.mem {
		if c.Subscribed(kind) {
			out = append(out, clone(c))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *fileStore) ListChannels(context.Context) ([]notify.ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	out := make([]notify.ChannelConfig, 0, len(s.mem))
	for _, c := range s.mem {
		out = append(out, clone(c))
	}
	sortByID(out)
	return out, nil
}

func (s *fileStore) GetChannel(_ context.Context, id string) (notify.ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return notify.ChannelConfig{}, ErrClosed
	}
	c, ok := s.mem[strings.TrimSpace(id)]
	if !ok {
		return notify.ChannelConfig{}, ErrNotFound
	}
	return clone(c), nil
}

func (s *fileStore) PutChannel(_ context.Context, cfg notify.ChannelConfig) error {
	cfg, err := normalize(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "put", ID: cfg.ID, Channel: &cfg}); err != nil {
		return err
	}
	s.mem[cfg.ID] = cfg
	return nil
}

func (s *fileStore) DeleteChannel(_ context.Context, id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, ok := s.mem[id]; !ok {
		return ErrNotFound
	}
	if err := s.appendLocked(journalRecord{Op: "delete", ID: id}); err != nil {
		return err
	}
	delete(s.mem, id)
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked writes the snapshot atomically, then truncates the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.mem); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]notify.ChannelConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]notify.ChannelConfig
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

// replayJournal applies journal records in order and counts undecodable lines.
func replayJournal(path string, out map[string]notify.ChannelConfig) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == "" {
			skipped++
			continue
		}
		switch r.Op {
		case "put":
			if r.Channel != nil {
				out[r.ID] = *r.Channel
			}
		case "delete":
			delete(out, r.ID)
		default:
			skipped++
		}
	}
	return skipped, sc.Err()
}
