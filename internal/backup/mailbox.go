package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

const (
	mailboxListTool = "ctl_mboxlist"
	mailboxesDB     = "mailboxes.db"
)

// mailboxToolDirs are searched when the list utility is not on PATH.
var mailboxToolDirs = []string{
	"/usr/lib/cyrus",
	"/usr/lib/cyrus/bin",
	"/usr/libexec/cyrus",
	"/usr/libexec/cyrus/bin",
}

// MailboxItem dumps the mailbox index of a Cyrus IMAP server and mirrors its
// directories. With a service configured the directories are synced twice:
// once live, then again with the service stopped.
type MailboxItem struct {
	itemBase
	runner   command.Runner
	services *service.Controller
	post     *PostProcessor
	lookPath func(string) (string, error)
}

func NewMailboxItem(spec config.ItemSpec, deps Deps) *MailboxItem {
	item := &MailboxItem{
		itemBase: newItemBase(spec, config.TypeMailbox, deps),
		runner:   deps.Runner,
		post:     deps.Post,
		lookPath: deps.LookPath,
	}
	if deps.Services != nil {
		item.services = deps.Services.With(item.report)
	}
	return item
}

func (m *MailboxItem) Run(ctx context.Context, depot string) Result {
	if err := m.begin(); err != nil {
		return m.rejected(err)
	}

	target := filepath.Join(depot, m.spec.Name)
	quiesce := m.services != nil && m.spec.Service != "" && len(m.spec.Directories) > 0

	// Live pass; the quiesced pass below then only transfers what changed.
	if quiesce {
		m.syncDirectories(ctx, target, false)
	}

	m.dumpMailboxes(ctx, depot)

	if quiesce {
		m.quiescedSync(ctx, target)
	} else if len(m.spec.Directories) > 0 {
		m.syncDirectories(ctx, target, true)
	}

	return m.finish()
}

// quiescedSync stops the mail service for the final pass and always starts
// it again. A service that did not stop in time is synced anyway.
func (m *MailboxItem) quiescedSync(ctx context.Context, target string) {
	defer m.services.Start(ctx, m.spec.Service)

	m.services.Stop(ctx, m.spec.Service)
	m.syncDirectories(ctx, target, true)
}

func (m *MailboxItem) syncDirectories(ctx context.Context, target string, count bool) {
	m.mirrorDirectories(ctx, m.runner, m.spec.Directories, target, count)
}

func (m *MailboxItem) dumpMailboxes(ctx context.Context, depot string) {
	configDir := m.configDir()
	if configDir == "" {
		m.report.Warn(logging.MsgMailboxNoConfigDir)
		return
	}
	tool := m.findTool()
	if tool == "" {
		m.report.Warn(logging.MsgMailboxNoTool, mailboxListTool)
		return
	}

	start := m.clock.Now()
	m.report.Info(logging.MsgMailboxDumpStart)

	target := filepath.Join(depot, m.spec.Name+"-mailboxlist.txt")
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		m.report.Crit(logging.MsgMailboxDumpFailed, target, err)
		return
	}

	_, err = m.runner.Run(ctx, command.Cmd{Name: tool, Args: []string{"-d"}, Dir: configDir, Stdout: out})
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
		m.report.Crit(logging.MsgMailboxDumpFailed, target, err)
		return
	}

	var size int64
	if info, err := os.Stat(target); err == nil {
		size = info.Size()
	}
	m.report.Info(logging.MsgMailboxDumpFinished, logging.Size(size), m.elapsedMillis(start))

	m.addArtifact(m.post.Process(target, m.report))
}

// configDir returns the first candidate directory holding mailboxes.db.
func (m *MailboxItem) configDir() string {
	candidates := append([]string{m.spec.ConfigDir}, m.spec.Directories...)
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, mailboxesDB)); err == nil && !info.IsDir() {
			return dir
		}
	}
	return ""
}

func (m *MailboxItem) findTool() string {
	if path, err := m.lookPath(mailboxListTool); err == nil {
		return path
	}
	for _, dir := range mailboxToolDirs {
		path := filepath.Join(dir, mailboxListTool)
		if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return path
		}
	}
	return ""
}
