package changesource

import (
	"fmt"
	"strconv"
)

// BackupNode is the minimal surface backup/restore metadata is persisted
// through, alongside a directory of numbered item files.
type BackupNode interface {
	Read(key string) (string, bool)
	Write(key, value, comment string, isDefault bool)
	ReadAll() map[string]string
}

// BackupWriter persists one numbered item during Backup; dir/N holds the
// verbatim content.
type BackupWriter interface {
	WriteItem(dir string, n int, content []byte) error
}

// BackupReader reads back one numbered item during Restore.
type BackupReader interface {
	ReadItem(dir string, n int) ([]byte, error)
}

// Backup iterates every live item and writes it to dir/N plus the triple
// (N-uid, N-rev) into node, finishing with numitems=N
// (SPEC_FULL.md §4.3 "Backup/Restore hooks").
func (s *Source) Backup(dir string, node BackupNode, w BackupWriter) error {
	live, err := s.backend.ListAll()
	if err != nil {
		return s.classify(err)
	}
	n := 0
	for uid, rev := range live {
		item, err := s.backend.Read(uid)
		if err != nil {
			return s.classify(err)
		}
		if err := w.WriteItem(dir, n, item.Content); err != nil {
			return fmt.Errorf("changesource: backup write item %d: %w", n, err)
		}
		node.Write(fmt.Sprintf("%d-uid", n), uid, "", false)
		node.Write(fmt.Sprintf("%d-rev", n), rev, "", false)
		n++
	}
	node.Write("numitems", strconv.Itoa(n), "", false)
	return nil
}

// Restore reads node's backup manifest, diffs it against the current live
// set, and performs the inserts/updates/deletes needed to converge
// (SPEC_FULL.md §4.3).
func (s *Source) Restore(dir string, node BackupNode, r BackupReader) error {
	raw, ok := node.Read("numitems")
	if !ok {
		return fmt.Errorf("changesource: restore manifest missing numitems")
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("changesource: restore manifest numitems %q: %w", raw, err)
	}

	backed := make(map[string][]byte, count)
	order := make([]string, 0, count)
	for i := 0; i < count; i++ {
		uid, ok := node.Read(fmt.Sprintf("%d-uid", i))
		if !ok {
			return fmt.Errorf("changesource: restore manifest missing entry %d-uid", i)
		}
		content, err := r.ReadItem(dir, i)
		if err != nil {
			return fmt.Errorf("changesource: restore read item %d: %w", i, err)
		}
		backed[uid] = content
		order = append(order, uid)
	}

	live, err := s.backend.ListAll()
	if err != nil {
		return s.classify(err)
	}

	for _, uid := range order {
		if _, exists := live[uid]; exists {
			if _, _, _, err := s.backend.Insert(uid, Item{UID: uid, Content: backed[uid]}); err != nil {
				return s.classify(err)
			}
		} else {
			if _, _, _, err := s.backend.Insert("", Item{UID: uid, Content: backed[uid]}); err != nil {
				return s.classify(err)
			}
		}
	}
	for uid := range live {
		if _, wanted := backed[uid]; !wanted {
			if err := s.backend.Delete(uid); err != nil {
				return s.classify(err)
			}
		}
	}
	return nil
}
