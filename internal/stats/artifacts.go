// Package stats writes run artifacts into the run's log directory.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"hypersched/internal/model"
)

const runIndexFile = "run_index.json"

var artifactFiles = []string{"config.toml", "run.json", "stat_history.json", "stat_history.csv", "param_changes.json"}

type RunArtifacts struct {
	Run     model.RunRecord
	Config  []byte
	History []model.StatSeries
	Changes []model.ParamChange
}

type RunIndexEntry struct {
	RunID        string             `json:"run_id"`
	Epochs       int                `json:"epochs"`
	GlobalStep   int64              `json:"global_step"`
	Setters      []string           `json:"setters"`
	ChangeCount  int                `json:"change_count"`
	FinalValues  map[string]float64 `json:"final_values"`
	CreatedAtUTC string             `json:"created_at_utc"`
}

// WriteRunArtifacts writes one directory per run below baseDir and returns
// its path.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(runDir, "config.toml"), artifacts.Config, 0o644); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	history := artifacts.History
	if history == nil {
		history = []model.StatSeries{}
	}
	if err := writeJSON(filepath.Join(runDir, "stat_history.json"), history); err != nil {
		return "", err
	}
	if err := writeHistoryCSV(filepath.Join(runDir, "stat_history.csv"), history); err != nil {
		return "", err
	}
	changes := artifacts.Changes
	if changes == nil {
		changes = []model.ParamChange{}
	}
	if err := writeJSON(filepath.Join(runDir, "param_changes.json"), changes); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadParamChanges(baseDir, runID string) ([]model.ParamChange, bool, error) {
	var changes []model.ParamChange
	ok, err := readJSON(filepath.Join(baseDir, runID, "param_changes.json"), &changes)
	return changes, ok, err
}

func ReadStatHistory(baseDir, runID string) ([]model.StatSeries, bool, error) {
	var series []model.StatSeries
	ok, err := readJSON(filepath.Join(baseDir, runID, "stat_history.json"), &series)
	return series, ok, err
}

// ExportRunArtifacts copies a run directory to outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

// writeHistoryCSV writes one row per epoch and one column per statistic.
// Series shorter than the longest one leave their trailing cells empty.
func writeHistoryCSV(path string, history []model.StatSeries) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"epoch"}
	rows := 0
	for _, s := range history {
		header = append(header, s.Name)
		if len(s.Values) > rows {
			rows = len(s.Values)
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		record := []string{strconv.Itoa(i + 1)}
		for _, s := range history {
			cell := ""
			if i < len(s.Values) {
				cell = strconv.FormatFloat(s.Values[i], 'g', -1, 64)
			}
			record = append(record, cell)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
