// Durable draft storage, one JSONL table per publish target.

package drafts

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/ksid"

	"github.com/pagewright/pagewright/internal/jsonldb"
)

// Store persists drafts for one publish target. Targets never share a file,
// so staging against two repositories cannot cross-contaminate.
//
// Two processes writing the same draft key race last-write-wins; there is no
// cross-process locking. The store watches its backing file and reloads when
// another process rewrites it, so at least both see the final state.
type Store struct {
	table  *jsonldb.Table[Draft]
	target string

	mu      sync.Mutex
	subs    []chan struct{}
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// TargetID normalizes a repository coordinate (owner, repo, branch) into the
// namespace identifier used for the backing file.
func TargetID(owner, repo, branch string) string {
	slug := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToLower(s) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			} else {
				b.WriteByte('-')
			}
		}
		return strings.Trim(b.String(), "-")
	}
	return slug(owner) + "-" + slug(repo) + "-" + slug(branch)
}

// Open loads (or creates) the draft store for one target under dir.
func Open(dir, target string) (*Store, error) {
	table, err := jsonldb.Open[Draft](fmt.Sprintf("%s/drafts-%s.jsonl", dir, target))
	if err != nil {
		return nil, fmt.Errorf("failed to open draft store: %w", err)
	}
	s := &Store{table: table, target: target, done: make(chan struct{})}

	// Watch the directory: the table saves via rename, which only shows up
	// as a Create event on the directory watch.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("draft store runs without file watching", "err", err)
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		slog.Warn("draft store runs without file watching", "dir", dir, "err", err)
		return s, nil
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.table.Path() {
				continue
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if err := s.table.Reload(); err != nil {
				slog.Error("failed to reload draft store", "err", err)
				continue
			}
			s.notify()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("draft store watch error", "err", err)
		}
	}
}

// Target returns the namespace identifier this store serves.
func (s *Store) Target() string {
	return s.target
}

// Put stages a draft, replacing any live draft of the same kind and entity.
// A draft without a key is assigned one. Returns the stored draft.
func (s *Store) Put(d Draft) (Draft, error) {
	if d.Key == "" {
		d.Key = ksid.NewID().String()
	}
	d.SavedAt = time.Now().UTC()
	if !d.valid() {
		return Draft{}, fmt.Errorf("draft %s is structurally invalid", d.Key)
	}

	// One live draft per (kind, entity): drop any sibling first.
	if entity := d.EntityID(); entity != "" {
		var stale []string
		for _, other := range s.table.All() {
			if other.Key != d.Key && other.Kind == d.Kind && other.EntityID() == entity {
				stale = append(stale, other.Key)
			}
		}
		if err := s.table.DeleteAll(stale); err != nil {
			return Draft{}, err
		}
	}

	if err := s.table.Put(d); err != nil {
		return Draft{}, err
	}
	s.notify()
	return d, nil
}

// Get returns a staged draft by key.
func (s *Store) Get(key string) (Draft, bool) {
	return s.table.Get(key)
}

// Delete discards a staged draft.
func (s *Store) Delete(key string) error {
	removed, err := s.table.Delete(key)
	if err != nil {
		return err
	}
	if removed {
		s.notify()
	}
	return nil
}

// DeleteAll discards several drafts in one write. Used after a successful
// publish to consume exactly the drafts that were included.
func (s *Store) DeleteAll(keys []string) error {
	if err := s.table.DeleteAll(keys); err != nil {
		return err
	}
	s.notify()
	return nil
}

// List returns all structurally valid drafts sorted by key. Invalid or
// foreign rows are skipped silently.
func (s *Store) List() []Draft {
	rows := s.table.All()
	out := rows[:0:0]
	for _, d := range rows {
		if d.valid() {
			out = append(out, d)
		} else {
			slog.Debug("skipping invalid draft row", "key", d.Key, "kind", d.Kind)
		}
	}
	return out
}

// Subscribe returns a channel that receives a signal after every mutation.
// Signals are best-effort: a slow receiver misses intermediate ones.
func (s *Store) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops the file watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
