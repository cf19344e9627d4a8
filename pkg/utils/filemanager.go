// =============================================================================
// ETC Mailer - File Manager Utility
// =============================================================================
//
// This module provides the file operations around a batch run:
//   - Sheet discovery in the input folder
//   - Archival of processed sheets with a timestamp-prefixed name
//   - Run summaries written as JSON next to the archive
//   - Storage of sheets uploaded through the web front end
//
// ARCHIVAL STRATEGY:
//   - Sheets are moved to the processed folder only after their customers
//     have been mailed
//   - Archived names are "<timestamp>_<original name>", where the timestamp
//     is ISO-8601 UTC with ':' and '.' replaced by '-'
//     (2025-08-01T09-30-00-000Z_customers.csv)
//   - Sheets that were skipped or failed stay where they are
//
// =============================================================================

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// SheetExtensions lists the accepted input extensions, lower-case.
var SheetExtensions = []string{".csv", ".xlsx"}

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for a batch run.
type FileManager struct {
	// InputDir is scanned for customer sheets.
	InputDir string

	// ProcessedDir receives archived sheets.
	ProcessedDir string

	// OutputDir receives run summaries.
	OutputDir string

	// Now returns the archive timestamp. Defaults to time.Now.
	Now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, processedDir, outputDir string) *FileManager {
	return &FileManager{
		InputDir:     inputDir,
		ProcessedDir: processedDir,
		OutputDir:    outputDir,
		Now:          time.Now,
	}
}

// EnsureDirectories creates all required directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.InputDir, fm.ProcessedDir, fm.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverSheets lists the customer sheets in dir, sorted by name.
//
// A file qualifies when its extension matches SheetExtensions ignoring case
// and its name does not start with '.'. Directories are ignored.
func DiscoverSheets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var result []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !IsSheet(name) {
			continue
		}
		result = append(result, filepath.Join(dir, name))
	}

	return result, nil
}

// IsSheet reports whether name has an accepted sheet extension.
func IsSheet(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range SheetExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveName builds the archived name of a sheet processed at t.
func ArchiveName(t time.Time, fileName string) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return stamp + "_" + fileName
}

// ArchiveFile moves a sheet into the processed folder.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails. The source is left in place on error.
func (fm *FileManager) ArchiveFile(filePath string) (string, error) {
	now := time.Now
	if fm.Now != nil {
		now = fm.Now
	}

	if err := os.MkdirAll(fm.ProcessedDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	archivePath := filepath.Join(fm.ProcessedDir, ArchiveName(now(), filepath.Base(filePath)))

	if err := os.Rename(filePath, archivePath); err != nil {
		// Cross-device moves fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// =============================================================================
// SUMMARIES AND UPLOADS
// =============================================================================

// WriteSummary writes a run summary as indented JSON to the output folder.
//
// RETURNS:
//   - The path to the summary file, named after the run ID.
func (fm *FileManager) WriteSummary(summary types.ProcessingSummary) (string, error) {
	name := fmt.Sprintf("processing-summary-%s.json", summary.RunID)
	path := filepath.Join(fm.OutputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}

	return path, nil
}

// SaveUpload stores an uploaded sheet in dir under a collision-free name
// that keeps the original base name as suffix.
func SaveUpload(dir, originalName string, r io.Reader) (string, error) {
	base := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid upload name %q", originalName)
	}
	if !IsSheet(base) {
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(base))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+"_"+base)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	return path, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
