// Package changesource implements the generic change-tracking layer that
// turns any backend satisfying the Backend contract into a SyncML source
// (SPEC_FULL.md §4.3). It owns the UID-to-revision tracking map for a
// change-id and classifies the new/updated/deleted/unchanged set on
// beginSync, independent of the backend's own storage format.
package changesource

import (
	"fmt"

	"github.com/syncevo/syncengine/internal/resilience"
	"github.com/syncevo/syncengine/internal/syncmode"
)

// Item is an opaque backend record. Content is stored verbatim; the backend
// decides encoding.
type Item struct {
	UID     string
	Content []byte
}

// Backend is the minimal surface every source storage must present
// (SPEC_FULL.md §4.3).
type Backend interface {
	ListAll() (map[string]string, error) // uid -> revision
	Insert(uid string, item Item) (newUID, newRevision string, merged bool, err error)
	Read(uid string) (Item, error)
	Delete(uid string) error
	Flush() error
}

// TrackingNode is the minimal key/value surface the tracking map is
// persisted through; configtree.Node satisfies it.
type TrackingNode interface {
	Read(key string) (string, bool)
	Write(key, value, comment string, isDefault bool)
	Remove(key string)
	ReadAll() map[string]string
}

// ChangeType classifies one item found during beginSync.
type ChangeType int

const (
	Unchanged ChangeType = iota
	NewItem
	Updated
	Deleted
)

func (c ChangeType) String() string {
	switch c {
	case NewItem:
		return "new"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

// Change is one classified item.
type Change struct {
	UID  string
	Type ChangeType
}

// Source is the generic change-tracking source: a Backend plus its
// per-change-id tracking node.
type Source struct {
	backend Backend
	tracked TrackingNode
	failed  bool

	// all holds every live UID seen this sync, retained only when the
	// anchor plan's needAll is set (SPEC_FULL.md §4.3 step 4 "memory
	// hygiene").
	all map[string]struct{}
}

// New returns a Source over backend, tracking changes in node.
func New(backend Backend, node TrackingNode) *Source {
	return &Source{backend: backend, tracked: node}
}

// Failed reports whether a prior operation classified a backend error as
// permanent, marking this source's tracking state as not-to-be-trusted.
func (s *Source) Failed() bool { return s.failed }

// BeginSync computes the new/updated/deleted/unchanged classification for
// mode, per the anchor-logic table in SPEC_FULL.md §4.3.
func (s *Source) BeginSync(mode syncmode.Mode) ([]Change, error) {
	plan := syncmode.Plan(mode)
	live, err := s.backend.ListAll()
	if err != nil {
		return nil, s.classify(err)
	}
	tracked := s.tracked.ReadAll()

	if !plan.NeedPartial {
		for uid := range tracked {
			s.tracked.Remove(uid)
		}
	}

	if plan.NeedAll {
		s.all = make(map[string]struct{}, len(live))
	}

	var changes []Change
	for uid, rev := range live {
		if uid == "" {
			return nil, fmt.Errorf("changesource: backend returned empty uid")
		}
		if rev == "" && syncmode.RequiresNonEmptyRevision(mode) {
			return nil, fmt.Errorf("changesource: backend returned empty revision for uid %q", uid)
		}

		if plan.DeleteLocal {
			if err := s.backend.Delete(uid); err != nil {
				return nil, s.classify(err)
			}
			continue
		}

		if plan.NeedAll {
			s.all[uid] = struct{}{}
		}

		if plan.NeedPartial {
			old, existed := tracked[uid]
			switch {
			case !existed:
				changes = append(changes, Change{UID: uid, Type: NewItem})
			case old == rev:
				changes = append(changes, Change{UID: uid, Type: Unchanged})
			default:
				changes = append(changes, Change{UID: uid, Type: Updated})
			}
		}
		s.tracked.Write(uid, rev, "", false)
	}

	if plan.NeedPartial {
		for uid := range tracked {
			if _, stillLive := live[uid]; !stillLive {
				changes = append(changes, Change{UID: uid, Type: Deleted})
				s.tracked.Remove(uid)
			}
		}
	}

	if !plan.NeedAll {
		s.all = nil
	}

	return changes, nil
}

// EndSync flushes the tracking node on success; on failure it is left
// untouched so the next run is forced to slow-sync (SPEC_FULL.md §4.3).
func (s *Source) EndSync() error {
	if s.failed {
		return nil
	}
	type flusher interface{ Flush() error }
	if f, ok := s.tracked.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Add inserts a new item and records its tracking entry.
func (s *Source) Add(item Item) (uid string, merged bool, err error) {
	newUID, newRev, merged, err := s.backend.Insert("", item)
	if err != nil {
		return "", false, s.classify(err)
	}
	s.tracked.Write(newUID, newRev, "", false)
	return newUID, merged, nil
}

// Update replaces an existing item, re-keying the tracking entry if the
// backend returned a different uid (e.g. a merge).
func (s *Source) Update(uid string, item Item) (newUID string, err error) {
	item.UID = uid
	newUID, newRev, _, err := s.backend.Insert(uid, item)
	if err != nil {
		return "", s.classify(err)
	}
	if newUID != uid {
		s.tracked.Remove(uid)
	}
	s.tracked.Write(newUID, newRev, "", false)
	return newUID, nil
}

// Delete removes an item from the backend and its tracking entry.
func (s *Source) Delete(uid string) error {
	if err := s.backend.Delete(uid); err != nil {
		return s.classify(err)
	}
	s.tracked.Remove(uid)
	return nil
}

// classify records a permanent failure as failed (tracking stays
// unflushed) and returns err unchanged so callers can still inspect it;
// temporary failures are returned as-is for the caller's retry policy
// (SPEC_FULL.md §4.3: shared resilience classifier).
func (s *Source) classify(err error) error {
	if resilience.Classify(err) == resilience.Permanent {
		s.failed = true
	}
	return err
}
