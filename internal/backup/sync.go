package backup

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
)

// SyncItem mirrors a source directory into a depot subdirectory with rsync.
type SyncItem struct {
	itemBase
	runner command.Runner
}

func NewSyncItem(spec config.ItemSpec, deps Deps) *SyncItem {
	return &SyncItem{
		itemBase: newItemBase(spec, config.TypeSync, deps),
		runner:   deps.Runner,
	}
}

func (s *SyncItem) Run(ctx context.Context, depot string) Result {
	if err := s.begin(); err != nil {
		return s.rejected(err)
	}

	source := s.spec.Source
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		s.report.Crit(logging.MsgSyncSource, source)
		return s.finish()
	}

	target := filepath.Join(depot, s.spec.SyncDestination())
	if err := os.MkdirAll(target, 0755); err != nil {
		s.report.Crit(logging.MsgSyncFailed, source, err)
		return s.finish()
	}

	args := []string{"-a", "--delete", "--delete-after", "--stats"}
	for _, pattern := range s.spec.Exclude {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			args = append(args, "--exclude="+pattern)
		}
	}
	args = append(args, strings.TrimSuffix(source, "/")+"/", target+"/")

	if files, bytes, ok := syncDirectory(ctx, s.runner, s.report, s.clock.Now, source, target, args); ok {
		s.addData(files, bytes)
	}
	return s.finish()
}

// mirrorDirectories syncs each directory, with its full path, below target.
// With count set the mirrored data adds to the item statistics.
func (b *itemBase) mirrorDirectories(ctx context.Context, runner command.Runner, dirs []string, target string, count bool) {
	if err := os.MkdirAll(target, 0755); err != nil {
		b.report.Crit(logging.MsgSyncFailed, target, err)
		return
	}
	for _, dir := range dirs {
		source := strings.TrimSuffix(dir, "/")
		args := []string{"-aR", "--delete", "--delete-after", "--stats", source, target + "/"}
		files, bytes, ok := syncDirectory(ctx, runner, b.report, b.clock.Now, source, filepath.Join(target, source), args)
		if ok && count {
			b.addData(files, bytes)
		}
	}
}

// syncDirectory runs rsync with args and returns the file count and size of
// the mirrored data. Counts come from rsync's statistics, or from a scan of
// target when they cannot be read.
func syncDirectory(ctx context.Context, runner command.Runner, rep logging.Reporter, now func() time.Time, source, target string, args []string) (int64, int64, bool) {
	start := now()
	rep.Info(logging.MsgSyncStart, source)

	if files, size, err := DirSize(target); err == nil {
		rep.Info(logging.MsgSyncCurrentSize, source, files, logging.Size(size))
	}

	res, err := runner.Run(ctx, command.Cmd{Name: "rsync", Args: args})
	if err != nil {
		rep.Crit(logging.MsgSyncFailed, source, err)
		return 0, 0, false
	}

	files, size, ok := parseRsyncStats(res.Stdout)
	if !ok {
		rep.Warn(logging.MsgSyncStats, source)
		var scanErr error
		if files, size, scanErr = DirSize(target); scanErr != nil {
			files, size = 0, 0
		}
	}

	rep.Info(logging.MsgSyncFinished, source, now().Sub(start).Milliseconds(), files, logging.Size(size))
	return files, size, true
}

var (
	rsyncFilesPattern = regexp.MustCompile(`Number of files: ([\d,.]+)(?: \(reg: ([\d,.]+))?`)
	rsyncSizePattern  = regexp.MustCompile(`Total file size: ([\d,.]+) bytes`)
)

// parseRsyncStats reads the regular file count and total size from the
// output of rsync --stats.
func parseRsyncStats(output string) (files int64, size int64, ok bool) {
	fm := rsyncFilesPattern.FindStringSubmatch(output)
	sm := rsyncSizePattern.FindStringSubmatch(output)
	if fm == nil || sm == nil {
		return 0, 0, false
	}

	count := fm[1]
	if fm[2] != "" {
		count = fm[2]
	}

	var err error
	if files, err = parseStatNumber(count); err != nil {
		return 0, 0, false
	}
	if size, err = parseStatNumber(sm[1]); err != nil {
		return 0, 0, false
	}
	return files, size, true
}

func parseStatNumber(value string) (int64, error) {
	return strconv.ParseInt(strings.NewReplacer(",", "", ".", "").Replace(value), 10, 64)
}
