package backup

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

var testEpoch = time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

type testEnv struct {
	depot    string
	runner   *command.MockRunner
	rec      *logging.Recorder
	clock    *testclock.Clock
	backend  *service.MockBackend
	services *service.Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		depot:   t.TempDir(),
		runner:  command.NewMockRunner(),
		rec:     logging.NewRecorder(),
		clock:   testclock.NewClock(testEpoch),
		backend: service.NewMockBackend(),
	}
	services, err := service.NewController(service.ControllerConfig{
		Backend:  env.backend,
		Clock:    env.clock,
		Reporter: env.rec,
	})
	require.NoError(t, err)
	env.services = services
	return env
}

func (e *testEnv) deps(t *testing.T, compression config.CompressionConfig) Deps {
	t.Helper()
	return Deps{
		Runner:   e.runner,
		Services: e.services,
		Post:     NewPostProcessor(NewLedger(e.depot+"/sha256sums.txt"), NewCompressor(compression), e.clock),
		Reporter: e.rec,
		Clock:    e.clock,
		TempDir:  t.TempDir(),
		LookPath: func(string) (string, error) { return "", errNotFound },
	}
}

// writeOutput returns a runner handler that writes data to the command's
// stdout.
func writeOutput(data string) func(command.Cmd) (command.Result, error) {
	return func(cmd command.Cmd) (command.Result, error) {
		if cmd.Stdout != nil {
			if _, err := cmd.Stdout.Write([]byte(data)); err != nil {
				return command.Result{ExitCode: 1}, err
			}
		}
		return command.Result{}, nil
	}
}

const rsyncStats = `
Number of files: 1,204 (reg: 1,100, dir: 104)
Number of created files: 0
Total file size: 52,428,800 bytes
Total transferred file size: 0 bytes
`

type notFoundError struct{}

func (notFoundError) Error() string { return "executable file not found in $PATH" }

var errNotFound = notFoundError{}
