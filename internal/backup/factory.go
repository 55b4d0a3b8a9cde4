package backup

import (
	"os/exec"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

// Deps are the collaborators handed to every item of a run.
type Deps struct {
	Runner   command.Runner
	Services *service.Controller // optional
	Post     *PostProcessor
	Reporter logging.Reporter
	Clock    clock.Clock
	Lister   DatabaseLister
	TempDir  string
	LookPath func(file string) (string, error)
	// Claims is shared by all items of a run.
	Claims *PathClaims
}

func (d Deps) withDefaults() Deps {
	if d.Runner == nil {
		d.Runner = command.NewExecRunner()
	}
	if d.Reporter == nil {
		d.Reporter = logging.NewSlogReporter(nil)
	}
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Lister == nil {
		d.Lister = NewServerLister(d.Runner, d.TempDir)
	}
	if d.LookPath == nil {
		d.LookPath = exec.LookPath
	}
	if d.Claims == nil {
		d.Claims = NewPathClaims()
	}
	return d
}

// NewItem creates the item variant matching the configured type tag.
func NewItem(spec config.ItemSpec, deps Deps) (Item, error) {
	deps = deps.withDefaults()
	if deps.Post == nil {
		return nil, errors.NotValidf("item %s without post processor", spec.Name)
	}

	itemType, ok := spec.ItemType()
	if !ok {
		return nil, errors.NotSupportedf("backup item type %q", spec.Type)
	}
	if err := spec.ValidatePaths(); err != nil {
		return nil, errors.NewNotValid(err, "item "+spec.Name)
	}

	switch itemType {
	case config.TypeDatabase:
		return NewDatabaseItem(spec, deps)
	case config.TypeMailbox:
		return NewMailboxItem(spec, deps), nil
	case config.TypeSync:
		return NewSyncItem(spec, deps), nil
	case config.TypeWebApp:
		return NewWebAppItem(spec, deps), nil
	default:
		return nil, errors.NotSupportedf("backup item type %q", spec.Type)
	}
}
