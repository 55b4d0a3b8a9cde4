package backup

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/TheGojiOG/hostbackup/internal/config"
)

// Compression types
const (
	CompressionZstd = "zstd"
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

func normalizeCompression(cfg config.CompressionConfig) config.CompressionConfig {
	compressionType := strings.ToLower(strings.TrimSpace(cfg.Type))
	if compressionType == "" {
		compressionType = CompressionZstd
	}
	if compressionType != CompressionGzip && compressionType != CompressionNone {
		compressionType = CompressionZstd
	}

	level := cfg.Level
	switch compressionType {
	case CompressionGzip:
		if level == 0 {
			level = 6
		}
		level = min(max(level, 1), 9)
	case CompressionZstd:
		if level == 0 {
			level = 3
		}
		level = min(max(level, 1), 22)
	default:
		level = 0
	}

	return config.CompressionConfig{
		Type:  compressionType,
		Level: level,
	}
}

func compressionExtension(cfg config.CompressionConfig) string {
	switch normalizeCompression(cfg).Type {
	case CompressionNone:
		return ""
	case CompressionGzip:
		return ".gz"
	default:
		return ".zst"
	}
}

// Compressor compresses dump files in-process.
type Compressor struct {
	cfg config.CompressionConfig
}

func NewCompressor(cfg config.CompressionConfig) *Compressor {
	return &Compressor{cfg: normalizeCompression(cfg)}
}

// Enabled reports whether files are compressed at all.
func (c *Compressor) Enabled() bool {
	return c.cfg.Type != CompressionNone
}

func (c *Compressor) Type() string {
	return c.cfg.Type
}

// CompressFile streams src into src plus the type's extension and returns
// the path and size of the result. A partial result is removed on failure.
func (c *Compressor) CompressFile(src string) (string, int64, error) {
	dst := src + compressionExtension(c.cfg)
	if dst == src {
		return "", 0, fmt.Errorf("compression is disabled")
	}

	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if err := c.compress(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	return dst, info.Size(), nil
}

func (c *Compressor) compress(w io.Writer, r io.Reader) error {
	var enc io.WriteCloser
	switch c.cfg.Type {
	case CompressionGzip:
		gz, err := gzip.NewWriterLevel(w, c.cfg.Level)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		enc = gz
	default:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.cfg.Level)))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		enc = zw
	}

	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	return nil
}
