package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// HistoryDirName is the directory under the output root holding one
	// sub-directory per run.
	HistoryDirName = "history"
	// HistoryLayout names a run directory after its creation time.
	HistoryLayout = "20060102_150405"
	MetadataFile  = "metadata.txt"
)

// Dataset is one run directory under history/.
type Dataset struct {
	Name         string
	Path         string
	CreatedAt    time.Time
	Files        []string
	HasCollected bool
	HasAnalysis  bool
}

// Age returns how long ago the dataset was created.
func (d Dataset) Age(now time.Time) time.Duration {
	return now.Sub(d.CreatedAt)
}

// NewHistoryDir creates root/history/YYYYMMDD_HHMMSS for a run started at now.
func NewHistoryDir(root string, now time.Time) (string, error) {
	path := filepath.Join(root, HistoryDirName, now.Format(HistoryLayout))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create history dir: %w", err)
	}
	return path, nil
}

// Metadata describes the content of a run directory.
type Metadata struct {
	Created     time.Time
	Description string
	RunID       string
	Files       []string
}

// WriteMetadata writes metadata.txt into dir.
func WriteMetadata(dir string, m Metadata) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Created: %s\n", m.Created.Format(time.RFC3339))
	fmt.Fprintf(&b, "Description: %s\n", m.Description)
	if m.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", m.RunID)
	}
	fmt.Fprintf(&b, "Files: %d\n", len(m.Files))
	for _, f := range m.Files {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), []byte(b.String()), 0o644)
}

// ListHistory returns the datasets under root/history, newest first.
// Directories whose name is not a run timestamp are ignored, and a missing
// history directory yields an empty list.
func ListHistory(root string) ([]Dataset, error) {
	dir := filepath.Join(root, HistoryDirName)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]Dataset, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		created, err := time.ParseInLocation(HistoryLayout, e.Name(), time.Local)
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		files, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		ds := Dataset{Name: e.Name(), Path: path, CreatedAt: created, Files: make([]string, 0, len(files))}
		for _, f := range files {
			ds.Files = append(ds.Files, f.Name())
			if f.Name() == CollectionLogFile {
				ds.HasCollected = true
			}
			if strings.HasPrefix(f.Name(), "all_connections") {
				ds.HasAnalysis = true
			}
		}
		out = append(out, ds)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
