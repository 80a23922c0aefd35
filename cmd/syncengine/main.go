// Command syncengine is the sync-session orchestration daemon: it serves
// the IPC control surface, schedules SyncML sessions, and drives
// auto-sync/presence/server-alerted-notification handling.
package main

import (
	"fmt"
	"os"

	"github.com/syncevo/syncengine/cmd/syncengine/cmd"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
)

func main() {
	cmd.SetVersion(buildVersion, buildCommit)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
