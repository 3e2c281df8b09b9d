// Package store owns the in-memory materialized meeting collection.  It
// wraps the cache decoder and the record normalizer behind a memoized,
// atomically replaced snapshot: a load either produces a complete new
// snapshot or leaves the previous one untouched, so concurrent readers
// never observe partial state.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oviedran/granola-mcp/internal/granola"
)

// ErrNotFound is returned when a meeting id is not present in the current
// snapshot.
var ErrNotFound = errors.New("meeting not found")

// Snapshot is an immutable, fully materialized view of the cache at a
// point in time.  It is replaced wholesale on reload, never mutated.
type Snapshot struct {
	Meetings []granola.Meeting
	LoadedAt time.Time

	state *granola.State
	byID  map[string]int
}

// Meeting returns the record with the given id, or nil.
func (sn *Snapshot) Meeting(id string) *granola.Meeting {
	if sn == nil {
		return nil
	}
	i, ok := sn.byID[id]
	if !ok {
		return nil
	}
	return &sn.Meetings[i]
}

// Store reads the cache file on demand and memoizes the resulting
// snapshot until a forced reload.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex // serializes loads
	snap atomic.Pointer[Snapshot]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.  A nil logger falls back to slog.Default.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Store) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// New creates a Store for the cache file at path.  No I/O happens until
// the first access.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file path.
func (s *Store) Path() string { return s.path }

// Load returns the current snapshot, decoding and normalizing the cache
// file first if none exists yet or force is true.  The swap is atomic:
// readers holding the previous snapshot keep a complete view.
func (s *Store) Load(ctx context.Context, force bool) (*Snapshot, error) {
	if !force {
		if sn := s.snap.Load(); sn != nil {
			return sn, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have completed the load while we waited.
	if !force {
		if sn := s.snap.Load(); sn != nil {
			return sn, nil
		}
	}

	start := time.Now()
	state, err := granola.DecodeFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: load %q: %w", s.path, err)
	}
	meetings, err := granola.Normalize(state)
	if err != nil {
		return nil, fmt.Errorf("store: normalize %q: %w", s.path, err)
	}

	sn := &Snapshot{
		Meetings: meetings,
		LoadedAt: time.Now().UTC(),
		state:    state,
		byID:     make(map[string]int, len(meetings)),
	}
	for i, m := range meetings {
		sn.byID[m.ID] = i
	}
	s.snap.Store(sn)

	s.logger.InfoContext(ctx, "store: cache loaded",
		"path", s.path, "records", len(meetings), "took", time.Since(start))
	return sn, nil
}

// Meetings returns the full ordered record collection, loading the cache
// on first access.
func (s *Store) Meetings(ctx context.Context) ([]granola.Meeting, error) {
	sn, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	return sn.Meetings, nil
}

// Meeting returns a single record by id, loading the cache on first
// access.  Returns ErrNotFound if no record has that id.
func (s *Store) Meeting(ctx context.Context, id string) (*granola.Meeting, error) {
	sn, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	if m := sn.Meeting(id); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Transcript returns the transcript for the given meeting id, or nil when
// the meeting has none.  Returns ErrNotFound for an unknown id.
func (s *Store) Transcript(ctx context.Context, id string) (*granola.Transcript, error) {
	sn, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	if sn.Meeting(id) == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return sn.state.Transcript(id)
}

// Health is the result of a status probe against the cache source.
type Health struct {
	Readable  bool   `json:"readable"`
	SizeBytes int64  `json:"size_bytes"`
	Valid     bool   `json:"valid_structure"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck probes the cache source and the structural validity of the
// last decode.  It never returns an error: a broken source is reported
// inside the result.
func (s *Store) HealthCheck(ctx context.Context) Health {
	var h Health
	fi, err := os.Stat(s.path)
	if err == nil && fi.Mode().IsRegular() {
		h.Readable = true
		h.SizeBytes = fi.Size()
	}
	if _, err := s.Load(ctx, false); err != nil {
		h.Error = err.Error()
		return h
	}
	h.Valid = true
	return h
}

// Info describes the store state for observability surfaces.
type Info struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	LastLoadedTS time.Time `json:"last_loaded_ts"`
	RecordCount  int       `json:"record_count"`
	IsValid      bool      `json:"is_valid"`
}

// Info reports the cache path, size, last successful load time, and
// record count.  Like HealthCheck it never returns an error; a failed
// load yields IsValid=false with whatever file facts are available.
func (s *Store) Info(ctx context.Context) Info {
	info := Info{Path: s.path}
	if fi, err := os.Stat(s.path); err == nil {
		info.SizeBytes = fi.Size()
	}
	sn, err := s.Load(ctx, false)
	if err != nil {
		return info
	}
	info.LastLoadedTS = sn.LoadedAt
	info.RecordCount = len(sn.Meetings)
	info.IsValid = true
	return info
}
