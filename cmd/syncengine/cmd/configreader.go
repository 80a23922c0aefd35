package cmd

import (
	"fmt"

	"github.com/syncevo/syncengine/internal/configtree"
	"github.com/syncevo/syncengine/internal/property"
)

// treeConfigReader serves the read-only ipcserver.ConfigReader surface
// (GetConfigs/GetConfig) directly off the configuration tree (C1).
type treeConfigReader struct {
	tree *configtree.Tree
}

func (r *treeConfigReader) GetConfigs() []string {
	names, err := r.tree.Children("")
	if err != nil {
		return nil
	}
	return names
}

// GetConfig returns name's own properties under the "" key, plus each of
// its sources' properties keyed by source name (SPEC_FULL.md §4.1 peer
// context / per-source sub-node layout).
func (r *treeConfigReader) GetConfig(name string) (map[string]map[string]string, error) {
	if !r.tree.Exists(name) {
		return nil, fmt.Errorf("configreader: no such configuration %q", name)
	}
	out := map[string]map[string]string{"": r.tree.Open(name, true).ReadAll()}

	sources, err := r.tree.Children(name + "/sources")
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		path := fmt.Sprintf("%s/sources/%s", name, src)
		out[src] = r.tree.Open(path, true).ReadAll()
	}
	return out, nil
}

// peerSyncConfig reads the auto-sync-relevant subset of a peer's
// configuration (SPEC_FULL.md §4.7), splitting syncURL on whitespace since
// a peer may list more than one transport endpoint. Values are resolved
// through registry so a peer with no explicit autoSyncInterval/autoSyncDelay
// line still gets the registered default (e.g. the 1800s interval) instead
// of an empty string that parses to zero.
func peerSyncConfig(tree *configtree.Tree, registry *property.Registry, peer string) (syncURLs []string, autoSync, interval, delay string) {
	node := tree.Open(peer, true)
	autoSync = registry.Get(node, "autoSync")
	interval = registry.Get(node, "autoSyncInterval")
	delay = registry.Get(node, "autoSyncDelay")
	if raw, ok := node.Read("syncURL"); ok {
		syncURLs = splitWhitespace(raw)
	}
	return syncURLs, autoSync, interval, delay
}

func splitWhitespace(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
