package autosync

import (
	"strings"
	"time"
)

// Task is one candidate auto-sync endpoint: a peer configuration and one
// of its syncURL entries, tried independently of the rest of the list
// (SPEC_FULL.md §4.7: "sets its URL via a temporary filter to the task's
// URL (not the whole syncURL list, so each endpoint is tried
// independently)").
type Task struct {
	Peer  string
	URL   string
	Delay time.Duration
}

// Equal reports whether two tasks name the same (peer, url) pair,
// matching case-insensitively (SPEC_FULL.md §4.7: "A task equals another
// task iff (peer, url) match case-insensitively").
func (t Task) Equal(other Task) bool {
	return strings.EqualFold(t.Peer, other.Peer) && strings.EqualFold(t.URL, other.URL)
}

// key is the case-folded identity used by task-list stores.
func (t Task) key() string {
	return strings.ToLower(t.Peer) + "\x00" + strings.ToLower(t.URL)
}

// RequiredTransport classifies which presence transport a task's URL
// depends on: Bluetooth for obex-bt://, HTTP for http(s):// and
// local://, and "" (any/unknown, always considered up) otherwise.
func RequiredTransport(url string) string {
	switch {
	case strings.HasPrefix(url, "obex-bt://"):
		return "bluetooth"
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "local://"):
		return "http"
	default:
		return ""
	}
}
