package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hypersched/internal/config"
	"hypersched/internal/setter"
	"hypersched/internal/storage"
	"hypersched/pkg/hypersched"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		configPath string
		runID      string
		epochs     int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a training loop from a TOML config",
		Long: `Run the configured workload for the configured number of epochs while the
configured setters adjust its hyperparameters.

Examples:
  hyperschedctl run --config run.toml
  hyperschedctl run --config run.toml --epochs 50 --log-dir train_log/exp2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-dir") {
				cfg.LogDir = flags.logDir
			}
			if cmd.Flags().Changed("store") {
				cfg.Store = flags.store
			}
			if cmd.Flags().Changed("db-path") {
				cfg.DBPath = flags.dbPath
			}
			if runID != "" {
				cfg.RunID = runID
			}
			if epochs > 0 {
				cfg.Epochs = epochs
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			flags.dbPath = cfg.DBPath

			client, err := newClient(flags, cfg.Store)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id=%s epochs=%d global_step=%s changes=%d\n",
				summary.RunID, summary.Epochs, humanize.Comma(summary.GlobalStep), len(summary.Changes))
			for _, name := range sortedKeys(summary.FinalValues) {
				fmt.Fprintf(out, "final %s=%g\n", name, summary.FinalValues[name])
			}
			for _, name := range sortedKeys(summary.FinalStats) {
				fmt.Fprintf(out, "stat %s=%g\n", name, summary.FinalStats[name])
			}
			fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "run config file (TOML)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (default: random uuid)")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "override the configured epoch count")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override the configured workload seed")
	return cmd
}

func newPreviewCmd(flags *globalFlags) *cobra.Command {
	var (
		schedule  string
		interp    string
		stepBased bool
		from      int64
		to        int64
		every     int64
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the values a schedule would set",
		Long: `Evaluate a schedule of at:value checkpoints over a range of epochs (or
global steps with --step-based) without running a loop. Rows marked "-" are
where the setter leaves the parameter untouched.

Examples:
  hyperschedctl preview --schedule 0:0.1,30:0.01,60:0.001 --to 70 --every 10
  hyperschedctl preview --schedule 1:1,5:5 --interp linear --from 1 --to 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checkpoints, err := setter.ParseSchedule(schedule)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("to") && len(checkpoints) > 0 {
				for _, c := range checkpoints {
					if c.At+1 > to {
						to = c.At + 1
					}
				}
			}

			client, err := newClient(flags, storage.KindMemory)
			if err != nil {
				return err
			}
			defer client.Close()

			points, err := client.Preview(cmd.Context(), hypersched.PreviewRequest{
				Schedule:  checkpoints,
				Interp:    interp,
				StepBased: stepBased,
				From:      from,
				To:        to,
				Every:     every,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			unit := "epoch"
			if stepBased {
				unit = "step"
			}
			printHeader(out, fmt.Sprintf("schedule preview (%s, interp=%s)", unit, setter.NormalizeInterp(interp)))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\tvalue\n", unit)
			for _, p := range points {
				value := "-"
				if p.Active {
					value = strconv.FormatFloat(p.Value, 'g', 8, 64)
				}
				fmt.Fprintf(tw, "%d\t%s\n", p.At, value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "checkpoints as at:value pairs, comma separated")
	cmd.Flags().StringVar(&interp, "interp", setter.InterpNone, "interpolation: none|linear")
	cmd.Flags().BoolVar(&stepBased, "step-based", false, "checkpoints count global steps instead of epochs")
	cmd.Flags().Int64Var(&from, "from", 0, "first epoch or step")
	cmd.Flags().Int64Var(&to, "to", 0, "last epoch or step (default: one past the last checkpoint)")
	cmd.Flags().Int64Var(&every, "every", 1, "stride")
	return cmd
}

func newSetCmd(flags *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a value into the tuning file of a log directory",
		Long: `Set one key of the human tuning file (key:value per line) while keeping the
other keys. A running human setter applies the new value at its next epoch.

Examples:
  hyperschedctl set learning_rate 0.01
  hyperschedctl set --log-dir train_log/exp2 momentum 0.95`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}

			client, err := newClient(flags, storage.KindMemory)
			if err != nil {
				return err
			}
			defer client.Close()

			path, err := client.SetHuman(cmd.Context(), hypersched.SetHumanRequest{
				LogDir: flags.logDir,
				File:   file,
				Key:    args[0],
				Value:  value,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s=%g\n", path, args[0], value)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "tuning file name inside the log directory (default: hyper.txt)")
	return cmd
}

func newRunsCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags, "")
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), hypersched.RunsRequest{Limit: limit, LogDir: indexDir(flags)})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs")
				return nil
			}
			printHeader(out, "runs")
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "run_id\tcreated\tepochs\tsteps\tsetters\tfinal")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					r.RunID,
					humanize.Time(r.CreatedAt),
					r.Epochs,
					humanize.Comma(r.GlobalStep),
					strings.Join(r.Setters, ","),
					formatValues(r.FinalValues),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		runID  string
		latest bool
		stat   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print per-epoch statistics of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags, "")
			if err != nil {
				return err
			}
			defer client.Close()

			series, err := client.History(cmd.Context(), hypersched.HistoryRequest{
				RunID:  runID,
				Latest: latest,
				LogDir: indexDir(flags),
				Stat:   stat,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range series {
				printHeader(out, s.Name)
				for i, v := range s.Values {
					fmt.Fprintf(out, "epoch=%d value=%g\n", i+1, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().StringVar(&stat, "stat", "", "only this statistic")
	return cmd
}

func newChangesCmd(flags *globalFlags) *cobra.Command {
	var (
		runID  string
		latest bool
		param  string
	)
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List the hyperparameter changes applied during a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags, "")
			if err != nil {
				return err
			}
			defer client.Close()

			changes, err := client.Changes(cmd.Context(), hypersched.ChangesRequest{
				RunID:  runID,
				Latest: latest,
				LogDir: indexDir(flags),
				Param:  param,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(out, "no changes")
				return nil
			}
			printHeader(out, "changes")
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "epoch\tglobal_step\tsetter\tparam\tvalue")
			for _, c := range changes {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.8f\n", c.Epoch, humanize.Comma(c.GlobalStep), c.Setter, c.Param, c.Value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().StringVar(&param, "param", "", "only changes of this param")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of a run out of the log directory",
		Long: `Copy config, histories and param changes of one run into <out>/<run_id>.

Examples:
  hyperschedctl export --latest
  hyperschedctl export --run-id 5f0c... --out /tmp/runs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags, storage.KindMemory)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Export(cmd.Context(), hypersched.ExportRequest{
				RunID:  runID,
				Latest: latest,
				LogDir: flags.logDir,
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "exports", "destination directory")
	return cmd
}

func formatValues(values map[string]float64) string {
	parts := make([]string, 0, len(values))
	for _, name := range sortedKeys(values) {
		parts = append(parts, fmt.Sprintf("%s=%g", name, values[name]))
	}
	return strings.Join(parts, ",")
}

func sortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
