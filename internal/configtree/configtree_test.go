package configtree

import (
	"path/filepath"
	"testing"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"simple",
		"with space",
		"sc-pim-ppc",
		"!already-escaped!21",
		"unicode-éè",
		"",
	}
	for _, s := range cases {
		got, err := Unescape(Escape(s))
		if err != nil {
			t.Fatalf("Unescape(Escape(%q)) error: %v", s, err)
		}
		if got != s {
			t.Errorf("round trip for %q produced %q", s, got)
		}
	}
}

func TestUnescapeRejectsTruncated(t *testing.T) {
	for _, bad := range []string{"abc!", "abc!2", "abc!ZZ"} {
		if _, err := Unescape(bad); err == nil {
			t.Errorf("Unescape(%q) = nil error, want error", bad)
		}
	}
}

func TestFileNodeWriteThenReadReturnsCanonicalValue(t *testing.T) {
	dir := t.TempDir()
	n := NewFileNode(filepath.Join(dir, "config.ini"), false)

	n.Write("syncURL", "http://example.com/sync", "", false)
	v, ok := n.Read("syncURL")
	if !ok || v != "http://example.com/sync" {
		t.Fatalf("Read after Write = (%q, %v), want (http://example.com/sync, true)", v, ok)
	}
	if err := n.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reopened := NewFileNode(filepath.Join(dir, "config.ini"), false)
	v, ok = reopened.Read("syncURL")
	if !ok || v != "http://example.com/sync" {
		t.Fatalf("Read from reopened node = (%q, %v), want (http://example.com/sync, true)", v, ok)
	}
}

func TestFileNodeReadOnlyRejectsFlush(t *testing.T) {
	dir := t.TempDir()
	n := NewFileNode(filepath.Join(dir, "config.ini"), true)
	n.Write("key", "value", "", false)
	if err := n.Flush(); err == nil {
		t.Error("Flush on read-only dirty node = nil, want ErrReadOnly")
	}
}

func TestFileNodeRemove(t *testing.T) {
	dir := t.TempDir()
	n := NewFileNode(filepath.Join(dir, "config.ini"), false)
	n.Write("key", "value", "", false)
	n.Remove("key")
	if _, ok := n.Read("key"); ok {
		t.Error("Read after Remove still found key")
	}
}

func TestFilterNodeAddThenWriteThroughClearsFilter(t *testing.T) {
	dir := t.TempDir()
	under := NewFileNode(filepath.Join(dir, "config.ini"), false)
	under.Write("syncMode", "two-way", "", false)

	f := NewFilterNode(under)
	f.AddFilter("syncMode", "slow")
	if v, _ := f.Read("syncMode"); v != "slow" {
		t.Fatalf("Read through filter = %q, want slow", v)
	}

	f.Write("syncMode", "refresh-from-client", "", false)
	if v, _ := f.Read("syncMode"); v != "refresh-from-client" {
		t.Fatalf("Read after write-through = %q, want refresh-from-client", v)
	}
	if v, _ := under.Read("syncMode"); v != "refresh-from-client" {
		t.Fatalf("underlying Read after write-through = %q, want refresh-from-client", v)
	}
}

func TestFilterNodeCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	under := NewFileNode(filepath.Join(dir, "config.ini"), false)
	f := NewFilterNode(under)
	f.AddFilter("SyncMode", "slow")
	if v, ok := f.Read("syncmode"); !ok || v != "slow" {
		t.Errorf("Read(syncmode) = (%q, %v), want (slow, true)", v, ok)
	}
}

func TestSafeNodeEscapesKeys(t *testing.T) {
	dir := t.TempDir()
	under := NewFileNode(filepath.Join(dir, "config.ini"), false)
	s := NewSafeNode(under)

	key := "device/with weird!chars"
	s.Write(key, "v", "", false)
	if v, ok := s.Read(key); !ok || v != "v" {
		t.Fatalf("Read through safe node = (%q, %v), want (v, true)", v, ok)
	}
	if _, ok := under.Read(Escape(key)); !ok {
		t.Error("underlying node does not have the escaped key")
	}
}

func TestPrefixNodeScoping(t *testing.T) {
	dir := t.TempDir()
	under := NewFileNode(filepath.Join(dir, "config.ini"), false)
	p := NewPrefixNode(under, "source_addressbook_")

	p.Write("uri", "card3", "", false)
	if v, ok := under.Read("source_addressbook_uri"); !ok || v != "card3" {
		t.Fatalf("underlying Read = (%q, %v), want (card3, true)", v, ok)
	}
	if v, ok := p.Read("uri"); !ok || v != "card3" {
		t.Fatalf("prefixed Read = (%q, %v), want (card3, true)", v, ok)
	}
}

func TestTreeOpenCachesByPath(t *testing.T) {
	home := t.TempDir()
	tree, err := NewTree(home, 8)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	n1 := tree.Open("default", false)
	n2 := tree.Open("default", false)
	if n1 != n2 {
		t.Error("Open(same path) returned distinct instances, want cached reuse")
	}
}

func TestTreeFlushAndReopen(t *testing.T) {
	home := t.TempDir()
	tree, err := NewTree(home, 8)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	n := tree.Open("default", false)
	n.Write("username", "alice", "", false)
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !tree.Exists("default") {
		t.Error("Exists(default) = false after Flush, want true")
	}

	tree2, err := NewTree(home, 8)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	n2 := tree2.Open("default", false)
	if v, ok := n2.Read("username"); !ok || v != "alice" {
		t.Fatalf("Read from freshly opened Tree = (%q, %v), want (alice, true)", v, ok)
	}
}

func TestTreeChildrenAndRemove(t *testing.T) {
	home := t.TempDir()
	tree, err := NewTree(home, 8)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}

	tree.Open("default", false).Write("username", "alice", "", false)
	tree.Open("default/sources/addressbook", false).Write("uri", "card3", "", false)
	if err := tree.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	children, err := tree.Children("default/sources")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0] != "addressbook" {
		t.Fatalf("Children(default/sources) = %v, want [addressbook]", children)
	}

	if err := tree.Remove("default"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if tree.Exists("default") {
		t.Error("Exists(default) = true after Remove, want false")
	}
}
