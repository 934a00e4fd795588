package hypersched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"hypersched/internal/callback"
	"hypersched/internal/config"
	"hypersched/internal/humanfile"
	"hypersched/internal/model"
	"hypersched/internal/monitor"
	"hypersched/internal/setter"
	"hypersched/internal/stats"
	"hypersched/internal/storage"
	"hypersched/internal/trainer"
)

const (
	defaultRunsLimit = 20
	defaultExportDir = "exports"

	// MaxPreviewPoints bounds the number of rows Preview returns.
	MaxPreviewPoints = 100_000
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Epochs       int
	GlobalStep   int64
	FinalValues  map[string]float64
	FinalStats   map[string]float64
	Changes      []model.ParamChange
	History      []model.StatSeries
}

// RunsRequest lists runs from the store, or from the run index in LogDir
// when it is set.
type RunsRequest struct {
	Limit  int
	LogDir string
}

type RunItem struct {
	RunID         string
	CreatedAt     time.Time
	Epochs        int
	StepsPerEpoch int
	GlobalStep    int64
	Setters       []string
	FinalValues   map[string]float64
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	LogDir string
	Stat   string
}

type ChangesRequest struct {
	RunID  string
	Latest bool
	LogDir string
	Param  string
}

type SetHumanRequest struct {
	LogDir string
	File   string
	Key    string
	Value  float64
}

type PreviewRequest struct {
	Schedule  []setter.Checkpoint
	Interp    string
	StepBased bool
	From      int64
	To        int64
	Every     int64
}

// ExportRequest copies the artifacts of one run from LogDir into OutDir.
type ExportRequest struct {
	RunID  string
	Latest bool
	LogDir string
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// PreviewPoint is the scheduled value at At. Active=false means the setter
// would leave the param untouched there.
type PreviewPoint struct {
	At     int64
	Value  float64
	Active bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = config.DefaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureStore(ctx)
	return err
}

// Run trains the configured workload with the configured setters, then
// persists the run to the store and its artifacts to the log directory.
func (c *Client) Run(ctx context.Context, cfg config.Config) (RunSummary, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	store, err := c.ensureStore(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return RunSummary{}, fmt.Errorf("creating log dir: %w", err)
	}

	for _, v := range cfg.Variables {
		if err := store.DefineVariable(ctx, v.Name, v.Value); err != nil {
			return RunSummary{}, fmt.Errorf("define variable %s: %w", v.Name, err)
		}
	}

	var changes []model.ParamChange
	setters, err := cfg.BuildSetters(store, setter.Options{
		Logger: c.logger,
		OnChange: func(change model.ParamChange) {
			changes = append(changes, change)
		},
	})
	if err != nil {
		return RunSummary{}, err
	}

	workload, err := trainer.NewQuadratic(trainer.QuadraticConfig{
		Dim:             cfg.Workload.Dim,
		Curvature:       cfg.Workload.Curvature,
		Noise:           cfg.Workload.Noise,
		Start:           cfg.Workload.Start,
		Seed:            cfg.Seed,
		LearningRateVar: cfg.Workload.LearningRate,
		MomentumVar:     cfg.Workload.Momentum,
	}, store)
	if err != nil {
		return RunSummary{}, err
	}

	callbacks := make([]callback.Callback, 0, len(setters))
	names := make([]string, 0, len(setters))
	for _, s := range setters {
		callbacks = append(callbacks, s)
		names = append(names, s.Name())
	}

	mon := monitor.New()
	t, err := trainer.New(trainer.Config{
		Epochs:        cfg.Epochs,
		StepsPerEpoch: cfg.StepsPerEpoch,
		Workload:      workload,
		Callbacks:     callbacks,
		Monitor:       mon,
		Logger:        c.logger,
	})
	if err != nil {
		return RunSummary{}, err
	}
	result, err := t.Run(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", cfg.RunID, err)
	}

	finalValues := make(map[string]float64, len(cfg.Variables))
	for _, v := range cfg.Variables {
		value, ok, err := store.GetVariable(ctx, v.Name)
		if err != nil {
			return RunSummary{}, err
		}
		if ok {
			finalValues[v.Name] = value
		}
	}

	finalStats := make(map[string]float64, len(result.History))
	for _, series := range result.History {
		if v, ok := mon.Latest(series.Name); ok {
			finalStats[series.Name] = v
		}
	}

	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              cfg.RunID,
		CreatedAt:       time.Now().UTC(),
		Epochs:          result.Epochs,
		StepsPerEpoch:   cfg.StepsPerEpoch,
		GlobalStep:      result.GlobalStep,
		LogDir:          cfg.LogDir,
		Setters:         names,
		FinalValues:     finalValues,
	}
	if err := store.SaveStatHistory(ctx, record.ID, result.History); err != nil {
		return RunSummary{}, fmt.Errorf("save stat history: %w", err)
	}
	if err := store.SaveParamChanges(ctx, record.ID, changes); err != nil {
		return RunSummary{}, fmt.Errorf("save param changes: %w", err)
	}
	if err := store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	configData, err := config.Encode(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	artifactsDir, err := stats.WriteRunArtifacts(cfg.LogDir, stats.RunArtifacts{
		Run:     record,
		Config:  configData,
		History: result.History,
		Changes: changes,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(cfg.LogDir, stats.RunIndexEntry{
		RunID:        record.ID,
		Epochs:       record.Epochs,
		GlobalStep:   record.GlobalStep,
		Setters:      names,
		ChangeCount:  len(changes),
		FinalValues:  finalValues,
		CreatedAtUTC: record.CreatedAt.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, fmt.Errorf("append run index: %w", err)
	}

	c.logger.Info("run finished",
		"run_id", record.ID,
		"epochs", record.Epochs,
		"global_step", record.GlobalStep,
		"changes", len(changes),
	)

	return RunSummary{
		RunID:        record.ID,
		ArtifactsDir: artifactsDir,
		Epochs:       record.Epochs,
		GlobalStep:   record.GlobalStep,
		FinalValues:  finalValues,
		FinalStats:   finalStats,
		Changes:      changes,
		History:      result.History,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	var out []RunItem
	if req.LogDir != "" {
		entries, err := stats.ListRunIndex(req.LogDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			createdAt, err := time.Parse(time.RFC3339Nano, e.CreatedAtUTC)
			if err != nil {
				return nil, fmt.Errorf("run %s: bad timestamp: %w", e.RunID, err)
			}
			out = append(out, RunItem{
				RunID:       e.RunID,
				CreatedAt:   createdAt,
				Epochs:      e.Epochs,
				GlobalStep:  e.GlobalStep,
				Setters:     e.Setters,
				FinalValues: e.FinalValues,
			})
		}
	} else {
		store, err := c.ensureStore(ctx)
		if err != nil {
			return nil, err
		}
		runs, err := store.ListRuns(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			out = append(out, RunItem{
				RunID:         r.ID,
				CreatedAt:     r.CreatedAt,
				Epochs:        r.Epochs,
				StepsPerEpoch: r.StepsPerEpoch,
				GlobalStep:    r.GlobalStep,
				Setters:       r.Setters,
				FinalValues:   r.FinalValues,
			})
		}
	}

	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// History returns the per-epoch statistic histories of a run, optionally
// narrowed to one statistic.
func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.StatSeries, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, req.LogDir)
	if err != nil {
		return nil, err
	}

	var (
		series []model.StatSeries
		ok     bool
	)
	if req.LogDir != "" {
		series, ok, err = stats.ReadStatHistory(req.LogDir, runID)
	} else {
		store, serr := c.ensureStore(ctx)
		if serr != nil {
			return nil, serr
		}
		series, ok, err = store.GetStatHistory(ctx, runID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stat history not found for run %s", runID)
	}

	if req.Stat == "" {
		return series, nil
	}
	m := monitor.New()
	m.Restore(series)
	values, err := m.History(req.Stat)
	if err != nil {
		return nil, err
	}
	return []model.StatSeries{{Name: req.Stat, Values: values}}, nil
}

// Changes returns the parameter changes applied during a run, in the order
// they happened.
func (c *Client) Changes(ctx context.Context, req ChangesRequest) ([]model.ParamChange, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, req.LogDir)
	if err != nil {
		return nil, err
	}

	var (
		changes []model.ParamChange
		ok      bool
	)
	if req.LogDir != "" {
		changes, ok, err = stats.ReadParamChanges(req.LogDir, runID)
	} else {
		store, serr := c.ensureStore(ctx)
		if serr != nil {
			return nil, serr
		}
		changes, ok, err = store.GetParamChanges(ctx, runID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("param changes not found for run %s", runID)
	}

	if req.Param == "" {
		return changes, nil
	}
	filtered := make([]model.ParamChange, 0, len(changes))
	for _, change := range changes {
		if change.Param == req.Param {
			filtered = append(filtered, change)
		}
	}
	return filtered, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.LogDir == "" {
		req.LogDir = config.DefaultLogDir
	}
	if req.OutDir == "" {
		req.OutDir = defaultExportDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, req.LogDir)
	if err != nil {
		return ExportSummary{}, err
	}

	dir, err := stats.ExportRunArtifacts(req.LogDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

// SetHuman writes one key into the tuning file of a log directory. A human
// setter watching that directory picks it up at its next epoch.
func (c *Client) SetHuman(ctx context.Context, req SetHumanRequest) (string, error) {
	if req.LogDir == "" {
		req.LogDir = config.DefaultLogDir
	}
	if req.File == "" {
		req.File = humanfile.DefaultFileName
	}
	path := filepath.Join(req.LogDir, req.File)
	if err := humanfile.Update(ctx, path, req.Key, req.Value); err != nil {
		return "", err
	}
	c.logger.Debug("tuning file updated", "path", path, "key", req.Key, "value", req.Value)
	return path, nil
}

// Preview evaluates a schedule over [From, To] without running a loop.
func (c *Client) Preview(_ context.Context, req PreviewRequest) ([]PreviewPoint, error) {
	policy, err := setter.NewScheduledPolicy(req.Schedule, req.Interp, req.StepBased)
	if err != nil {
		return nil, err
	}
	if req.Every <= 0 {
		req.Every = 1
	}
	if req.From < 0 {
		return nil, errors.New("preview range start must be >= 0")
	}
	if req.To < req.From {
		return nil, errors.New("preview range end must be >= start")
	}
	span := (req.To - req.From) / req.Every
	if span >= MaxPreviewPoints {
		return nil, fmt.Errorf("preview range yields more than %d points", MaxPreviewPoints)
	}

	out := make([]PreviewPoint, 0, span+1)
	for ref := req.From; ; ref += req.Every {
		value, ok := policy.ValueAt(ref)
		out = append(out, PreviewPoint{At: ref, Value: value, Active: ok})
		if ref > req.To-req.Every {
			break
		}
	}
	return out, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool, logDir string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	runs, err := c.Runs(ctx, RunsRequest{Limit: 1, LogDir: logDir})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].RunID, nil
}

func (c *Client) ensureStore(ctx context.Context) (storage.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return c.store, nil
	}
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	c.initialized = true
	return c.store, nil
}
