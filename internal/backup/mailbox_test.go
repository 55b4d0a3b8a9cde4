package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
)

func mailboxFixture(t *testing.T) (configDir, spool string) {
	t.Helper()
	configDir = t.TempDir()
	spool = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "mailboxes.db"), []byte("db"), 0600))
	return configDir, spool
}

func TestMailboxItemDumpsAndQuiesces(t *testing.T) {
	env := newTestEnv(t)
	configDir, spool := mailboxFixture(t)
	env.backend.SetActive("cyrus-imapd.service", true)

	var dumpCmd command.Cmd
	env.runner.Handle("/usr/sbin/ctl_mboxlist", func(cmd command.Cmd) (command.Result, error) {
		dumpCmd = cmd
		return writeOutput("user.alice\t0 default alice lrswipkxtecda\n")(cmd)
	})
	env.runner.Handle("rsync", func(command.Cmd) (command.Result, error) {
		return command.Result{Stdout: rsyncStats}, nil
	})

	deps := env.deps(t, config.CompressionConfig{})
	deps.LookPath = func(file string) (string, error) { return "/usr/sbin/" + file, nil }
	spec := config.ItemSpec{Name: "mail", Type: "cyrus", Service: "cyrus-imapd", Directories: []string{configDir, spool}}

	item, err := NewItem(spec, deps)
	require.NoError(t, err)
	res := item.Run(context.Background(), env.depot)

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, configDir, dumpCmd.Dir)
	assert.Equal(t, []string{"-d"}, dumpCmd.Args)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, filepath.Join(env.depot, "mail-mailboxlist.txt.zst"), res.Artifacts[0].CompressedPath)

	// Two directories, synced live and again while stopped.
	assert.Len(t, env.runner.Invocations("rsync"), 4)
	assert.Equal(t, []string{"stop cyrus-imapd.service", "start cyrus-imapd.service"}, env.backend.Calls())
	assert.True(t, env.backend.Active("cyrus-imapd.service"))
	// Only the quiesced pass counts: one artifact plus two directories.
	assert.Equal(t, int64(1+2*1100), res.Statistics.Files)
}

func TestMailboxItemWithoutConfigDirWarns(t *testing.T) {
	env := newTestEnv(t)
	spec := config.ItemSpec{Name: "mail", Type: "mailbox", ConfigDir: t.TempDir()}

	item, err := NewItem(spec, env.deps(t, config.CompressionConfig{}))
	require.NoError(t, err)
	res := item.Run(context.Background(), env.depot)

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 1, res.Statistics.Warnings)
	assert.Empty(t, res.Artifacts)
	assert.True(t, env.rec.Has(logging.MsgMailboxNoConfigDir))
	assert.Empty(t, env.runner.Calls)
}

func TestMailboxItemWithoutToolWarns(t *testing.T) {
	env := newTestEnv(t)
	configDir, _ := mailboxFixture(t)
	spec := config.ItemSpec{Name: "mail", Type: "mailbox", ConfigDir: configDir}

	for _, dir := range mailboxToolDirs {
		if _, statErr := os.Stat(filepath.Join(dir, mailboxListTool)); statErr == nil {
			t.Skip("ctl_mboxlist is installed on this host")
		}
	}

	item, err := NewItem(spec, env.deps(t, config.CompressionConfig{}))
	require.NoError(t, err)
	res := item.Run(context.Background(), env.depot)

	assert.Equal(t, 1, res.Statistics.Warnings)
	assert.Empty(t, res.Artifacts)
	msg := env.rec.Find(logging.MsgMailboxNoTool)
	require.NotNil(t, msg)
	assert.Equal(t, []any{"ctl_mboxlist"}, msg.Args)
	assert.NoFileExists(t, filepath.Join(env.depot, "mail-mailboxlist.txt"))
}

func TestMailboxItemRestartsServiceWhenStopFails(t *testing.T) {
	env := newTestEnv(t)
	_, spool := mailboxFixture(t)
	env.backend.FailStop("cyrus-imapd.service", assert.AnError)
	env.runner.Handle("rsync", func(command.Cmd) (command.Result, error) {
		return command.Result{Stdout: rsyncStats}, nil
	})

	spec := config.ItemSpec{Name: "mail", Type: "mailbox", Service: "cyrus-imapd", Directories: []string{spool}}
	item, err := NewItem(spec, env.deps(t, config.CompressionConfig{}))
	require.NoError(t, err)
	res := item.Run(context.Background(), env.depot)

	assert.Equal(t, []string{"stop cyrus-imapd.service", "start cyrus-imapd.service"}, env.backend.Calls())
	assert.True(t, env.rec.Has(logging.MsgServiceStopFailed))
	assert.GreaterOrEqual(t, res.Statistics.Warnings, 2)
}
