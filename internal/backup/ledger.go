package backup

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Ledger is the append-only checksum file of a depot. Lines use the
// sha256sum format "<digest>  <name>".
type Ledger struct {
	mu   sync.Mutex
	path string
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string {
	return l.path
}

// Append writes one line to the ledger.
func (l *Ledger) Append(digest, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s  %s\n", digest, name); err != nil {
		f.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return f.Close()
}

// LedgerEntry is one parsed ledger line
type LedgerEntry struct {
	Digest string
	Name   string
}

// ReadLedger parses a ledger file.
func ReadLedger(path string) ([]LedgerEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []LedgerEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		digest, name, ok := strings.Cut(line, "  ")
		if !ok {
			return nil, fmt.Errorf("malformed ledger line %q", line)
		}
		entries = append(entries, LedgerEntry{Digest: digest, Name: name})
	}
	return entries, scanner.Err()
}
