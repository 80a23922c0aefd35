package cmd

import (
	"context"
	"fmt"

	"github.com/syncevo/syncengine/internal/changesource"
	"github.com/syncevo/syncengine/internal/configtree"
	"github.com/syncevo/syncengine/internal/session"
	"github.com/syncevo/syncengine/internal/syncmode"
)

// stubEngine satisfies session.Engine without driving any wire-level
// SyncML exchange: the binary/XML message codec is a distinct subsystem
// (SPEC_FULL.md Non-goals) this daemon does not implement. It still drives
// every configured source through the real change-tracking source (C3),
// so each run computes and persists the correct sync anchor for the next
// attempt, even though no actual items ever flow across the wire.
type stubEngine struct {
	tree    *configtree.Tree
	peer    string
	sources []string
	mode    syncmode.Mode
}

// newStubEngine looks up peer's configured sources so Run has something
// real to drive changesource.Source through.
func newStubEngine(tree *configtree.Tree, peer string, mode syncmode.Mode) stubEngine {
	sources, _ := tree.Children(peer + "/sources")
	return stubEngine{tree: tree, peer: peer, sources: sources, mode: mode}
}

func (e stubEngine) effectiveMode() syncmode.Mode {
	if e.mode != "" {
		return e.mode
	}
	return syncmode.TwoWay
}

func (e stubEngine) Run(ctx context.Context, cb session.EngineCallbacks) error {
	mode := e.effectiveMode()
	total := len(e.sources)
	for i, name := range e.sources {
		node := e.tree.Open(e.peer+"/sources/"+name+"/.tracking", false)
		src := changesource.New(stubBackend{}, node)
		if _, err := src.BeginSync(mode); err != nil {
			cb.ReportStatus(fmt.Sprintf("%d", 500))
			return fmt.Errorf("stub engine: source %q beginSync: %w", name, err)
		}
		if err := src.EndSync(); err != nil {
			cb.ReportStatus(fmt.Sprintf("%d", 500))
			return fmt.Errorf("stub engine: source %q endSync: %w", name, err)
		}
		if total > 0 {
			cb.ReportProgress(name, (i+1)*100/total)
		}
	}
	cb.ReportStatus(fmt.Sprintf("%d", 200))
	return nil
}

// stubBackend is the changesource.Backend the stub engine drives: it never
// reports a live item, since populating one requires the wire-level SyncML
// exchange this daemon does not implement. It still lets BeginSync/EndSync
// compute and persist each source's anchor/tracking state correctly.
type stubBackend struct{}

func (stubBackend) ListAll() (map[string]string, error) { return nil, nil }

func (stubBackend) Insert(uid string, item changesource.Item) (string, string, bool, error) {
	return uid, "", false, nil
}

func (stubBackend) Read(uid string) (changesource.Item, error) { return changesource.Item{}, nil }

func (stubBackend) Delete(uid string) error { return nil }

func (stubBackend) Flush() error { return nil }
