package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/logging"
)

// chownDepot hands every top-level depot entry except lost+found to owner
// ("user" or "user:group"). Failures are warnings.
func chownDepot(ctx context.Context, runner command.Runner, rep logging.Reporter, depot, owner string) {
	entries, err := os.ReadDir(depot)
	if err != nil {
		rep.Warn(logging.MsgChownFailed, depot, owner, err)
		return
	}
	for _, entry := range entries {
		if entry.Name() == "lost+found" {
			continue
		}
		path := filepath.Join(depot, entry.Name())
		if _, err := runner.Run(ctx, command.Cmd{Name: "chown", Args: []string{"-R", owner, path}}); err != nil {
			rep.Warn(logging.MsgChownFailed, path, owner, err)
		}
	}
}
