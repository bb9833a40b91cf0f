// Package archive keeps timestamped JSON snapshots on disk, one folder per year.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const timestampLayout = "20060102_150405"

// Archive writes <root>/<YYYY>/<prefix>_<YYYYMMDD_HHMMSS>.json files.
type Archive struct {
	root   string
	prefix string
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an archive rooted at root. Prefix names the snapshot kind,
// e.g. "disneyplus_prices".
func New(root, prefix string) *Archive {
	return &Archive{root: root, prefix: prefix, now: time.Now, logger: zerolog.Nop()}
}

// WithLogger sets the logger.
func (a *Archive) WithLogger(l zerolog.Logger) *Archive {
	a.logger = l
	return a
}

// WithClock overrides the timestamp source.
func (a *Archive) WithClock(now func() time.Time) *Archive {
	a.now = now
	return a
}

// Root returns the archive directory.
func (a *Archive) Root() string {
	return a.root
}

// Save writes data as a new snapshot and, when latestPath is set, also as the
// latest copy there. Legacy root-level snapshots are migrated first.
func (a *Archive) Save(data []byte, latestPath string) (string, error) {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	if _, err := a.Migrate(); err != nil {
		a.logger.Warn().Err(err).Msg("archive migration failed")
	}

	ts := a.now().Format(timestampLayout)
	dir := filepath.Join(a.root, yearOf(ts, a.now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create year folder: %w", err)
	}

	path := filepath.Join(dir, a.prefix+"_"+ts+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if latestPath != "" {
		if err := os.WriteFile(latestPath, data, 0o644); err != nil {
			return path, fmt.Errorf("failed to write latest copy: %w", err)
		}
	}
	a.logger.Info().Str("path", path).Str("latest", latestPath).Msg("snapshot archived")
	return path, nil
}

// SaveJSON indents v and saves it.
func (a *Archive) SaveJSON(v any, latestPath string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return a.Save(buf.Bytes(), latestPath)
}

// Migrate moves snapshots left at the archive root into their year folder.
// Files already present at the destination are left in place.
func (a *Archive) Migrate() (int, error) {
	entries, err := os.ReadDir(a.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read archive: %w", err)
	}

	moved := 0
	for _, e := range entries {
		ts, ok := a.timestampOf(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		dir := filepath.Join(a.root, yearOf(ts, a.now))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return moved, fmt.Errorf("failed to create year folder: %w", err)
		}
		dst := filepath.Join(dir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := os.Rename(filepath.Join(a.root, e.Name()), dst); err != nil {
			a.logger.Warn().Str("file", e.Name()).Err(err).Msg("failed to migrate snapshot")
			continue
		}
		moved++
	}
	if moved > 0 {
		a.logger.Info().Int("files", moved).Msg("migrated snapshots into year folders")
	}
	return moved, nil
}

// File is one archived snapshot.
type File struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// YearStats lists one year's snapshots, newest first.
type YearStats struct {
	Year  string `json:"year"`
	Count int    `json:"count"`
	Files []File `json:"files"`
}

// Stats summarizes the archive.
type Stats struct {
	TotalFiles int         `json:"total_files"`
	Years      []YearStats `json:"years"`
}

// Stats counts snapshots per year folder. Years are listed newest first.
func (a *Archive) Stats() (*Stats, error) {
	stats := &Stats{Years: []YearStats{}}
	entries, err := os.ReadDir(a.root)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() || !isYear(e.Name()) {
			continue
		}
		dir := filepath.Join(a.root, e.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		ys := YearStats{Year: e.Name(), Files: []File{}}
		for _, f := range files {
			if _, ok := a.timestampOf(f.Name()); !ok || f.IsDir() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			ys.Files = append(ys.Files, File{Path: filepath.Join(dir, f.Name()), ModTime: info.ModTime()})
		}
		sort.SliceStable(ys.Files, func(i, j int) bool { return ys.Files[i].ModTime.After(ys.Files[j].ModTime) })
		ys.Count = len(ys.Files)
		stats.TotalFiles += ys.Count
		stats.Years = append(stats.Years, ys)
	}
	sort.Slice(stats.Years, func(i, j int) bool { return stats.Years[i].Year > stats.Years[j].Year })
	return stats, nil
}

// timestampOf returns the timestamp part of <prefix>_<ts>.json.
func (a *Archive) timestampOf(name string) (string, bool) {
	head := a.prefix + "_"
	if !strings.HasPrefix(name, head) || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, head), ".json"), true
}

// yearOf takes the year from a timestamp, falling back to the current year.
func yearOf(ts string, now func() time.Time) string {
	if len(ts) >= 4 && isYear(ts[:4]) {
		return ts[:4]
	}
	return now().Format("2006")
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
