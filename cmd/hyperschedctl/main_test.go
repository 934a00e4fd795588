package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hypersched/internal/humanfile"
	"hypersched/internal/stats"
)

const testRunConfig = `
run_id = "cli-run"
epochs = 4
steps_per_epoch = 3

[workload]
kind = "quadratic"
noise = 0.0

[[variables]]
name = "learning_rate"
value = 0.5

[[setters]]
kind = "schedule"
param = "learning_rate"
schedule = [{ at = 0, value = 0.1 }, { at = 2, value = 0.05 }, { at = 4, value = 0.01 }]
`

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestRunCommandWritesArtifactsAndListsThem(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "train_log")
	configPath := filepath.Join(dir, "run.toml")
	if err := os.WriteFile(configPath, []byte(testRunConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out := runCLI(t, "run", "--store", "memory", "--log-dir", logDir, "--config", configPath)
	if !strings.Contains(out, "run_id=cli-run epochs=4 global_step=12 changes=3") {
		t.Fatalf("unexpected run output:\n%s", out)
	}
	if !strings.Contains(out, "final learning_rate=0.01") {
		t.Fatalf("expected final value in output:\n%s", out)
	}
	if !strings.Contains(out, "stat train-loss=") || !strings.Contains(out, "stat val-error=") {
		t.Fatalf("expected final stats in output:\n%s", out)
	}

	entries, err := stats.ListRunIndex(logDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "cli-run" {
		t.Fatalf("unexpected run index: %+v", entries)
	}

	out = runCLI(t, "runs", "--store", "memory", "--log-dir", logDir)
	if !strings.Contains(out, "cli-run") || !strings.Contains(out, "schedule/learning_rate") {
		t.Fatalf("unexpected runs output:\n%s", out)
	}

	out = runCLI(t, "changes", "--store", "memory", "--log-dir", logDir, "--latest")
	if got := strings.Count(out, "schedule"); got != 3 {
		t.Fatalf("expected 3 change rows, got=%d\n%s", got, out)
	}
	if !strings.Contains(out, "0.05000000") {
		t.Fatalf("expected change to 0.05:\n%s", out)
	}

	out = runCLI(t, "history", "--store", "memory", "--log-dir", logDir, "--run-id", "cli-run", "--stat", "val-error")
	if got := strings.Count(out, "epoch="); got != 4 {
		t.Fatalf("expected 4 history rows, got=%d\n%s", got, out)
	}
}

func TestRunAndListAgreeOnDefaultStore(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "train_log")
	dbPath := filepath.Join(dir, "hypersched.db")
	configPath := filepath.Join(dir, "run.toml")
	if err := os.WriteFile(configPath, []byte(testRunConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	runCLI(t, "run", "--log-dir", logDir, "--db-path", dbPath, "--config", configPath)

	out := runCLI(t, "runs", "--log-dir", logDir, "--db-path", dbPath)
	if !strings.Contains(out, "cli-run") {
		t.Fatalf("expected run listed with default store, got:\n%s", out)
	}
	out = runCLI(t, "changes", "--log-dir", logDir, "--db-path", dbPath, "--run-id", "cli-run")
	if got := strings.Count(out, "schedule"); got != 3 {
		t.Fatalf("expected 3 change rows, got=%d\n%s", got, out)
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "train_log")
	outDir := filepath.Join(dir, "exports")
	configPath := filepath.Join(dir, "run.toml")
	if err := os.WriteFile(configPath, []byte(testRunConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	runCLI(t, "run", "--store", "memory", "--log-dir", logDir, "--config", configPath)

	out := runCLI(t, "export", "--log-dir", logDir, "--latest", "--out", outDir)
	if !strings.Contains(out, "exported run_id=cli-run") {
		t.Fatalf("unexpected export output:\n%s", out)
	}
	for _, file := range []string{"config.toml", "run.json", "stat_history.json", "stat_history.csv", "param_changes.json"} {
		if _, err := os.Stat(filepath.Join(outDir, "cli-run", file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}

	var buf bytes.Buffer
	if err := run(context.Background(), []string{"export", "--log-dir", logDir, "--run-id", "missing", "--out", outDir}, &buf); err == nil {
		t.Fatal("expected error exporting unknown run")
	}
	if err := run(context.Background(), []string{"export", "--log-dir", logDir, "--run-id", "cli-run", "--latest"}, &buf); err == nil {
		t.Fatal("expected error for run id together with latest")
	}
}

func TestPreviewCommandRejectsHugeRange(t *testing.T) {
	var out bytes.Buffer
	args := []string{"preview", "--schedule", "0:1", "--to", "9223372036854775807", "--every", "1"}
	if err := run(context.Background(), args, &out); err == nil {
		t.Fatal("expected range limit error")
	}
	out.Reset()
	args = []string{"preview", "--schedule", "0:1", "--to", "9223372036854775807", "--every", "9223372036854775807"}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("preview with max stride: %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 4 {
		t.Fatalf("expected header, column row and 2 rows, got=%d\n%s", got, out.String())
	}
}

func TestPreviewCommand(t *testing.T) {
	out := runCLI(t, "preview", "--schedule", "0:0.1,30:0.01,60:0.001", "--to", "70", "--every", "10")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected header, column row and 8 rows, got=%d\n%s", len(lines), out)
	}
	want := map[int][]string{
		2: {"0", "0.1"},
		4: {"20", "0.1"},
		5: {"30", "0.01"},
		8: {"60", "0.001"},
		9: {"70", "-"},
	}
	for idx, fields := range want {
		got := strings.Fields(lines[idx])
		if len(got) != 2 || got[0] != fields[0] || got[1] != fields[1] {
			t.Fatalf("line %d: expected %v, got=%v", idx, fields, got)
		}
	}
}

func TestPreviewCommandDefaultsRangeToLastCheckpoint(t *testing.T) {
	out := runCLI(t, "preview", "--schedule", "1:1,5:5", "--interp", "linear")
	if !strings.Contains(out, "interp=linear") {
		t.Fatalf("expected interp in header:\n%s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.Fields(lines[len(lines)-1])
	if last[0] != "6" || last[1] != "-" {
		t.Fatalf("expected range to end past the last checkpoint, got=%v", last)
	}
	third := strings.Fields(lines[5])
	if third[0] != "3" || third[1] != "3" {
		t.Fatalf("expected interpolated 3 at epoch 3, got=%v", third)
	}
}

func TestSetCommandUpdatesTuningFile(t *testing.T) {
	logDir := t.TempDir()

	runCLI(t, "set", "--log-dir", logDir, "learning_rate", "0.01")
	runCLI(t, "set", "--log-dir", logDir, "momentum", "0.9")

	values, err := humanfile.Read(filepath.Join(logDir, humanfile.DefaultFileName))
	if err != nil {
		t.Fatalf("read tuning file: %v", err)
	}
	if values["learning_rate"] != 0.01 || values["momentum"] != 0.9 {
		t.Fatalf("unexpected tuning values: %+v", values)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"set", "--log-dir", logDir, "bad:key", "1"}, &out); err == nil {
		t.Fatal("expected invalid key error")
	}
	if err := run(context.Background(), []string{"set", "--log-dir", logDir, "lr", "fast"}, &out); err == nil {
		t.Fatal("expected invalid value error")
	}
}

func TestRunCommandRequiresConfig(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"run", "--store", "memory"}, &out); err == nil {
		t.Fatal("expected missing config error")
	}
	if err := run(context.Background(), []string{"bogus"}, &out); err == nil {
		t.Fatal("expected unknown command error")
	}
}
