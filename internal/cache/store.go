// Package cache implements the persistent, single-flight store backing the
// image optimizer.
//
// Each cache key owns two files under the store root: "<key>.jpg" holding the
// encoded variant and a "<key>.svg" sidecar holding the placeholder markup.
// Files are written once via temp-file-then-rename and never rewritten, so
// concurrent readers of a published entry need no locking. Failed
// computations publish nothing; the next request for the same key retries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/imgsrv/imgcache/internal/metrics"
)

// Key is an opaque, deterministic fingerprint of one (source, parameters)
// combination. Keys are comparable and safe to use as file names.
type Key string

// Entry is the materialized result for one Key. Entries are immutable once
// written; the store hands out shared pointers and nothing may mutate them.
type Entry struct {
	// Data holds the encoded image bytes.
	Data []byte

	// ContentType is the MIME type of Data.
	ContentType string

	// Placeholder is self-contained inline SVG markup for the low-quality
	// preview, sized to the variant's aspect ratio.
	Placeholder string

	// CreatedAt is when the entry was first computed. For entries reloaded
	// from disk after a restart this is the data file's mtime.
	CreatedAt time.Time
}

// Producer computes the Entry for a key on cache miss. It runs at most once
// per key across all concurrent callers. The context is the context of the
// caller that started the computation; later waiters that time out detach
// without cancelling it.
type Producer func(ctx context.Context) (*Entry, error)

// Store is a write-once key/value store with single-flight computation.
//
// Lookup order is the in-memory index, then disk, then the producer. Both
// mutable structures (the index and the in-flight group) take only
// short-held locks; no lock is held across a computation.
type Store struct {
	root string
	log  zerolog.Logger
	reg  *metrics.Registry

	group singleflight.Group

	mu    sync.RWMutex
	index map[Key]*Entry
}

// NewStore creates the store root directory if needed and returns a Store
// over it. reg may be nil to disable counters.
func NewStore(root string, log zerolog.Logger, reg *metrics.Registry) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &Store{
		root:  root,
		log:   log,
		reg:   reg,
		index: make(map[Key]*Entry),
	}, nil
}

// Root returns the durable storage directory.
func (s *Store) Root() string { return s.root }

// Len reports the number of entries in the in-memory index.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Lookup returns the entry for key if it is already cached in memory or on
// disk, without ever invoking a producer.
func (s *Store) Lookup(key Key) (*Entry, bool) {
	s.mu.RLock()
	entry, ok := s.index[key]
	s.mu.RUnlock()
	if ok {
		return entry, true
	}
	entry, err := s.readDisk(key)
	if err != nil {
		return nil, false
	}
	s.publish(key, entry)
	return entry, true
}

// GetOrCreate returns the cached entry for key, computing it with produce on
// miss.
//
// Concurrent calls with the same key observe exactly one producer execution;
// every caller receives the same *Entry or the same error. A successful
// result is durably written before it is returned or indexed. A failed
// computation leaves nothing behind.
//
// If ctx expires while another caller's computation is in flight, GetOrCreate
// returns ctx.Err() immediately; the computation continues and its result
// still reaches the remaining waiters.
func (s *Store) GetOrCreate(ctx context.Context, key Key, produce Producer) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.index[key]
	s.mu.RUnlock()
	if ok {
		s.count(ctx, metrics.CacheHits)
		return entry, nil
	}

	ch := s.group.DoChan(string(key), func() (interface{}, error) {
		return s.loadOrCompute(ctx, key, produce)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

// Remove deletes key from the index and its files from disk. This is the
// out-of-band cleanup hook; the engine itself never expires entries.
func (s *Store) Remove(key Key) error {
	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()

	err := os.Remove(s.dataPath(key))
	if sidecarErr := os.Remove(s.sidecarPath(key)); err == nil {
		err = sidecarErr
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) loadOrCompute(ctx context.Context, key Key, produce Producer) (*Entry, error) {
	// Recheck under the flight: another caller may have published while this
	// one was queued behind the group.
	s.mu.RLock()
	entry, ok := s.index[key]
	s.mu.RUnlock()
	if ok {
		s.count(ctx, metrics.CacheHits)
		return entry, nil
	}

	if entry, err := s.readDisk(key); err == nil {
		s.log.Debug().Str("key", string(key)).Msg("cache entry loaded from disk")
		s.count(ctx, metrics.CacheHits)
		s.publish(key, entry)
		return entry, nil
	}

	s.count(ctx, metrics.CacheMisses)
	entry, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.write(key, entry); err != nil {
		return nil, err
	}
	s.log.Debug().Str("key", string(key)).Int("bytes", len(entry.Data)).Msg("cache entry created")
	s.publish(key, entry)
	return entry, nil
}

func (s *Store) publish(key Key, entry *Entry) {
	s.mu.Lock()
	s.index[key] = entry
	s.mu.Unlock()
}

func (s *Store) dataPath(key Key) string {
	return filepath.Join(s.root, string(key)+".jpg")
}

func (s *Store) sidecarPath(key Key) string {
	return filepath.Join(s.root, string(key)+".svg")
}

// readDisk reloads a previously published entry. The data file is the
// publication marker: it is renamed into place last, so its presence implies
// a complete entry.
func (s *Store) readDisk(key Key) (*Entry, error) {
	data, err := os.ReadFile(s.dataPath(key))
	if err != nil {
		return nil, err
	}
	placeholder, err := os.ReadFile(s.sidecarPath(key))
	if err != nil {
		return nil, err
	}
	created := time.Now()
	if stat, err := os.Stat(s.dataPath(key)); err == nil {
		created = stat.ModTime()
	}
	return &Entry{
		Data:        data,
		ContentType: "image/jpeg",
		Placeholder: string(placeholder),
		CreatedAt:   created,
	}, nil
}

// write durably publishes the entry: sidecar first, data file last, each via
// a temp file in the same directory renamed into place. A crash mid-write
// leaves at most an unreferenced temp file or an orphan sidecar, never a
// half-written entry that readDisk would accept.
func (s *Store) write(key Key, entry *Entry) error {
	if err := s.writeAtomic(s.sidecarPath(key), []byte(entry.Placeholder)); err != nil {
		return err
	}
	return s.writeAtomic(s.dataPath(key), entry.Data)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

func (s *Store) count(ctx context.Context, name string) {
	if s.reg != nil {
		s.reg.Inc(ctx, name, nil, 1)
	}
}
