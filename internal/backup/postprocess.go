package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/clock"

	"github.com/TheGojiOG/hostbackup/internal/logging"
)

// DumpArtifact describes a dump file after post processing. CompressedPath
// is only set when compression succeeded; only then is the raw file gone.
type DumpArtifact struct {
	RawPath        string
	RawSize        int64
	CompressedPath string
	CompressedSize int64
	Digest         string
}

// Path returns where the artifact ended up.
func (a DumpArtifact) Path() string {
	if a.CompressedPath != "" {
		return a.CompressedPath
	}
	return a.RawPath
}

// Size returns the size of the file at Path.
func (a DumpArtifact) Size() int64 {
	if a.CompressedPath != "" {
		return a.CompressedSize
	}
	return a.RawSize
}

// PostProcessor hashes a raw dump into the ledger and then compresses it.
type PostProcessor struct {
	ledger     *Ledger
	compressor *Compressor
	clock      clock.Clock
}

func NewPostProcessor(ledger *Ledger, compressor *Compressor, clk clock.Clock) *PostProcessor {
	if clk == nil {
		clk = clock.WallClock
	}
	return &PostProcessor{ledger: ledger, compressor: compressor, clock: clk}
}

// Process hashes raw and appends the digest to the ledger, then compresses
// it. Hash and ledger failures are warnings; a compression failure is a
// critical that keeps the raw file.
func (p *PostProcessor) Process(raw string, rep logging.Reporter) DumpArtifact {
	artifact := DumpArtifact{RawPath: raw}
	if info, err := os.Stat(raw); err == nil {
		artifact.RawSize = info.Size()
	}
	name := filepath.Base(raw)

	start := p.clock.Now()
	digest, err := hashFile(raw)
	if err != nil {
		rep.Warn(logging.MsgHashOpen, raw, err)
	} else {
		artifact.Digest = digest
		rep.Info(logging.MsgHashFinished, name, p.clock.Now().Sub(start).Milliseconds(), digest)
		if err := p.ledger.Append(digest, name); err != nil {
			rep.Warn(logging.MsgLedgerWrite, p.ledger.Path(), err)
		}
	}

	if p.compressor == nil || !p.compressor.Enabled() {
		return artifact
	}

	start = p.clock.Now()
	rep.Info(logging.MsgCompressStart, name)
	compressed, size, err := p.compressor.CompressFile(raw)
	if err != nil {
		rep.Crit(logging.MsgCompressFailed, raw, err)
		return artifact
	}
	artifact.CompressedPath = compressed
	artifact.CompressedSize = size
	rep.Info(logging.MsgCompressFinished, name, logging.Size(size), p.clock.Now().Sub(start).Milliseconds())

	if err := os.Remove(raw); err != nil {
		rep.Warn(logging.MsgRemoveRaw, raw, err)
	}
	return artifact
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
