// Package syncmode defines the SyncML sync mode enumeration, its canonical
// wire names, and the aliases accepted when reading configuration or IPC
// requests (SPEC_FULL.md §3, §6).
package syncmode

import "strings"

// Mode is one configured or requested synchronization direction.
type Mode string

const (
	TwoWay             Mode = "two-way"
	Slow               Mode = "slow"
	RefreshFromClient  Mode = "refresh-from-client"
	RefreshFromServer  Mode = "refresh-from-server"
	OneWayFromClient   Mode = "one-way-from-client"
	OneWayFromServer   Mode = "one-way-from-server"
	Disabled           Mode = "disabled"
)

// aliases maps every accepted spelling (canonical included) to its canonical
// Mode. First-match-wins registration order does not matter here because
// each alias belongs to exactly one group; §4.2's first-match-wins rule
// applies to enum properties built with property.NewEnum.
var aliases = map[string]Mode{
	"two-way":             TwoWay,
	"slow":                Slow,
	"refresh-from-client": RefreshFromClient,
	"refresh-client":      RefreshFromClient,
	"refresh":             RefreshFromClient,
	"refresh-from-server": RefreshFromServer,
	"refresh-server":      RefreshFromServer,
	"one-way-from-client": OneWayFromClient,
	"one-way-client":      OneWayFromClient,
	"one-way":             OneWayFromClient,
	"one-way-from-server": OneWayFromServer,
	"one-way-server":      OneWayFromServer,
	"disabled":            Disabled,
	"none":                Disabled,
}

// Parse resolves any accepted alias (case-insensitive) to its canonical Mode.
func Parse(s string) (Mode, bool) {
	m, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	return m, ok
}

// Canonical returns the wire-canonical spelling for m, unchanged if m is
// already canonical or not recognized.
func Canonical(m Mode) string {
	if c, ok := Parse(string(m)); ok {
		return string(c)
	}
	return string(m)
}

// Valid reports whether m, compared case-insensitively, is any accepted
// spelling: one of the six canonical modes, disabled, or one of their aliases.
func (m Mode) Valid() bool {
	_, ok := aliases[strings.ToLower(string(m))]
	return ok
}

// AnchorPlan is the §4.3 beginSync decision table for a given mode.
type AnchorPlan struct {
	NeedAll      bool
	NeedPartial  bool
	DeleteLocal  bool
}

// Plan returns the anchor-logic decision table for mode, per SPEC_FULL.md §4.3.
func Plan(m Mode) AnchorPlan {
	switch m {
	case Slow:
		return AnchorPlan{NeedAll: true}
	case TwoWay, OneWayFromClient:
		return AnchorPlan{NeedPartial: true}
	case RefreshFromServer:
		return AnchorPlan{DeleteLocal: true}
	case RefreshFromClient:
		return AnchorPlan{NeedAll: true}
	case OneWayFromServer:
		return AnchorPlan{}
	default:
		return AnchorPlan{}
	}
}

// RequiresNonEmptyRevision reports whether an item's revision must be
// non-empty under mode. Only an exclusively REFRESH_FROM_CLIENT run allows
// empty revisions (SPEC_FULL.md §4.3, §8 boundary case).
func RequiresNonEmptyRevision(m Mode) bool {
	return m != RefreshFromClient
}
