// =============================================================================
// ETC Mailer - Ingestion Ledger
// =============================================================================
//
// The ledger remembers which source files have already been mailed. It is a
// flat JSON object, filename -> hex SHA-256 of the file's bytes, stored as a
// dotfile in the processed folder:
//
//   processed/.processed-hashes.json
//   {
//     "customers-aug.csv": "9f86d081884c7d65...",
//     "renewals.xlsx":     "2c26b46b68ffc68f..."
//   }
//
// CLASSIFICATION (per file, at scan time):
//   - no entry                    -> new        (admit)
//   - entry, same fingerprint     -> unchanged  (skip, no rows read)
//   - entry, different fingerprint-> changed    (admit, warn the operator)
//
// WRITE ORDERING:
//   Entries are recorded only after a file has been archived. A crash in
//   between leaves the file unrecorded, so the next run processes it again
//   rather than losing it.
//
// =============================================================================

package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// FileName is the ledger's name inside the processed folder.
const FileName = ".processed-hashes.json"

// ErrCorruptLedger is returned when the ledger exists but is not a JSON
// object of strings. The run must stop: guessing would either re-mail or
// silently skip customers.
var ErrCorruptLedger = errors.New("ingestion ledger is corrupt")

// Ledger is the in-memory copy of the ledger file.
type Ledger struct {
	path    string
	entries map[string]string
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the ledger from dir. A missing or empty file yields an empty
// ledger.
//
// RETURNS:
//   - The ledger, bound to dir for Save.
//   - An error wrapping ErrCorruptLedger if the JSON cannot be decoded, or
//     the underlying I/O error if the file exists but cannot be read.
func Load(dir string) (*Ledger, error) {
	l := &Ledger{
		path:    filepath.Join(dir, FileName),
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", l.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, l.path, err)
	}
	if l.entries == nil {
		// The file held JSON null.
		l.entries = make(map[string]string)
	}

	return l, nil
}

// =============================================================================
// QUERIES AND UPDATES
// =============================================================================

// Classify decides what to do with a file given its current fingerprint.
func (l *Ledger) Classify(name, fingerprint string) types.FileStatus {
	previous, ok := l.entries[name]
	switch {
	case !ok:
		return types.FileStatusNew
	case previous == fingerprint:
		return types.FileStatusUnchanged
	default:
		return types.FileStatusChanged
	}
}

// Record stores the fingerprint for name, replacing any previous entry.
func (l *Ledger) Record(name, fingerprint string) {
	l.entries[name] = fingerprint
}

// Lookup returns the stored fingerprint for name.
func (l *Ledger) Lookup(name string) (string, bool) {
	fp, ok := l.entries[name]
	return fp, ok
}

// Len returns the number of recorded files.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Names returns the recorded file names, sorted.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save writes the ledger atomically: a temp file in the same folder is
// written and renamed over the old ledger. Callers log a failure and carry
// on; the next run will simply re-process the affected files.
func (l *Ledger) Save() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace ledger %s: %w", l.path, err)
	}
	return nil
}

// =============================================================================
// FINGERPRINTS
// =============================================================================

// Fingerprint returns the hex-encoded SHA-256 of the file's bytes.
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
