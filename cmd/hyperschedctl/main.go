package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"hypersched/internal/config"
	"hypersched/internal/storage"
	"hypersched/pkg/hypersched"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

type globalFlags struct {
	store   string
	dbPath  string
	logDir  string
	verbose bool
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "hyperschedctl",
		Short:         "Drive training runs whose hyperparameters are changed by setters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&flags.store, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	root.PersistentFlags().StringVar(&flags.dbPath, "db-path", config.DefaultDBPath, "sqlite database path")
	root.PersistentFlags().StringVar(&flags.logDir, "log-dir", config.DefaultLogDir, "log directory holding the tuning file and run artifacts")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(flags),
		newPreviewCmd(flags),
		newSetCmd(flags),
		newRunsCmd(flags),
		newHistoryCmd(flags),
		newChangesCmd(flags),
		newExportCmd(flags),
	)
	return root
}

// newLogger logs text to a terminal and JSON everywhere else.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newClient(flags *globalFlags, storeKind string) (*hypersched.Client, error) {
	if storeKind == "" {
		storeKind = flags.store
	}
	return hypersched.New(hypersched.Options{
		StoreKind: storeKind,
		DBPath:    flags.dbPath,
		Logger:    newLogger(os.Stderr, flags.verbose),
	})
}

// indexDir returns the log directory when runs can only be found on disk.
// A memory store does not outlive the process that wrote it.
func indexDir(flags *globalFlags) string {
	if storage.Persistent(flags.store) {
		return ""
	}
	return flags.logDir
}

func printHeader(w io.Writer, text string) {
	if isTerminal(w) {
		text = headerStyle.Render(text)
	}
	fmt.Fprintln(w, text)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
