package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/config"
	"github.com/TobiSchelling/surveylens/internal/database"
	"github.com/TobiSchelling/surveylens/internal/export"
	"github.com/TobiSchelling/surveylens/internal/llm"
	"github.com/TobiSchelling/surveylens/internal/logging"
	"github.com/TobiSchelling/surveylens/internal/pipeline"
	"github.com/TobiSchelling/surveylens/internal/server"
	"github.com/TobiSchelling/surveylens/internal/session"
	"github.com/TobiSchelling/surveylens/internal/summarize"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "surveylens",
	Short:   "Classify and explore survey feedback",
	Long:    "SurveyLens classifies free-text survey responses with an LLM and lets you filter, chart and export the results.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logging.Setup(levelFor("info"), "text")
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(levelFor(cfg.Logging.Level), cfg.Logging.Format)
		return nil
	},
}

func levelFor(configured string) string {
	if verbose {
		return "debug"
	}
	return configured
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("surveylens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/surveylens/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the LLM provider and request pacing.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Completed: %d\n", stats.CompletedRuns)
		fmt.Println("\nResponses:")
		fmt.Printf("  Stored: %d\n", stats.Responses)
		fmt.Printf("  Classified: %d\n", stats.Classified)
		fmt.Printf("  Failed: %d\n", stats.Errored)
		fmt.Println("\nClassification:")
		fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
		fmt.Printf("  Interval: %s\n", cfg.Queue.Interval)
		fmt.Printf("  Date order: %s\n", cfg.Queue.DateOrder)
		return nil
	},
}

// --- analyze command ---

var (
	textField string
	dateField string
	dateOrder string
	dryRun    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Classify every response in a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := pipeline.Input{Path: args[0], TextField: textField, DateField: dateField, DateOrder: dateOrder}

		if dryRun {
			result, err := pipeline.New(cfg, nil).DryRun(in)
			if err != nil {
				return err
			}
			printSteps(result.Steps)
			printWarnings(result.Session)
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipe := pipeline.New(cfg, db)
		pipe.OnState = func(st session.State) {
			if st.Phase == session.PhaseAnalyzing {
				fmt.Fprintf(os.Stderr, "\r  %d/%d (%d%%)", len(st.Records), st.Total, st.Progress)
			}
		}

		result, err := pipe.Run(ctx, in)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		printSteps(result.Steps)
		printWarnings(result.Session)

		sum := session.Derive(result.Session).Summary
		fmt.Printf("\nAverage sentiment %.2f, average confidence %.0f over %d classified responses.\n",
			sum.AvgSentiment, sum.AvgConfidence, sum.Classified)

		if result.Cancelled {
			fmt.Printf("\nCancelled after %d of %d responses. Partial results are saved as run %s.\n",
				result.Classified+result.Errored, result.Total, result.RunID)
			return nil
		}
		fmt.Printf("\nDone in %s. Run 'surveylens report %s' or 'surveylens serve' to explore.\n",
			result.Duration.Round(time.Millisecond), result.RunID)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&textField, "text", "t", "", "Column holding the free-text response (required)")
	analyzeCmd.Flags().StringVarP(&dateField, "date", "d", "", "Column holding the response date")
	analyzeCmd.Flags().StringVar(&dateOrder, "date-order", "", "How to read NN/NN/YYYY dates: auto, mdy or dmy")
	analyzeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the file and show what would be done")
	_ = analyzeCmd.MarkFlagRequired("text")
}

func printWarnings(st session.State) {
	if len(st.Warnings) == 0 {
		return
	}
	fmt.Println("\nWarnings:")
	for _, w := range st.Warnings {
		fmt.Printf("  %s\n", w)
	}
}

func printSteps(steps []pipeline.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- runs command ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List and manage stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runsListCmd.RunE(cmd, args)
	},
}

var runsLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with: surveylens analyze FILE --text COLUMN")
			return nil
		}

		for _, r := range runs {
			started := ""
			if r.StartedAt != nil {
				started = *r.StartedAt
			}
			fmt.Printf("  %s  %-10s %5d/%-5d %s  %s\n", r.ID, r.Status, r.Processed, r.Total, started, r.SourceFile)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN",
	Short: "Show details of a run (ID, ID prefix or 'latest')",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := findRun(db, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Run:        %s\n", run.ID)
		fmt.Printf("File:       %s\n", run.SourceFile)
		fmt.Printf("Columns:    %s\n", strings.Join(run.Headers, ", "))
		fmt.Printf("Text:       %s\n", run.TextField)
		if run.DateField != nil {
			fmt.Printf("Date:       %s\n", *run.DateField)
		}
		fmt.Printf("Status:     %s\n", run.Status)
		fmt.Printf("Processed:  %d/%d\n", run.Processed, run.Total)
		if run.AmbiguousDates > 0 {
			fmt.Printf("Ambiguous:  %d dates\n", run.AmbiguousDates)
		}
		if run.StartedAt != nil {
			fmt.Printf("Started:    %s\n", *run.StartedAt)
		}
		if run.FinishedAt != nil {
			fmt.Printf("Finished:   %s\n", *run.FinishedAt)
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete RUN",
	Short: "Delete a run and its responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := findRun(db, args[0])
		if err != nil {
			return err
		}
		if _, err := db.DeleteRun(run.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s (%s)\n", run.ID, run.SourceFile)
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	runsCmd.Flags().AddFlagSet(runsListCmd.Flags())
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

// --- view options shared by report, export and summarize ---

var viewOpts struct {
	filters []string
	from    string
	to      string
	period  string
	group   string
	top     int
	expand  []string
}

func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&viewOpts.filters, "filter", "f", nil, "Filter as dimension=value (repeatable)")
	cmd.Flags().StringVar(&viewOpts.from, "from", "", "Only responses on or after this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&viewOpts.to, "to", "", "Only responses on or before this day (YYYY-MM-DD)")
}

// loadView restores a stored run and applies the view flags to it.
func loadView(db *database.DB, ref string) (*database.Run, session.View, session.State, error) {
	run, err := findRun(db, ref)
	if err != nil {
		return nil, session.View{}, session.State{}, err
	}
	records, err := db.GetResponses(run.ID)
	if err != nil {
		return nil, session.View{}, session.State{}, err
	}

	st := session.FromRun(run, records)
	top := viewOpts.top
	st, err = session.Apply(st, session.Options{
		Filters: viewOpts.filters,
		From:    viewOpts.from,
		To:      viewOpts.to,
		Period:  viewOpts.period,
		GroupBy: viewOpts.group,
		TopN:    &top,
		Expand:  viewOpts.expand,
	})
	if err != nil {
		return nil, session.View{}, session.State{}, err
	}
	return run, session.Derive(st), st, nil
}

// --- report command ---

var reportCmd = &cobra.Command{
	Use:   "report RUN",
	Short: "Print counts, topics and trends for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, view, st, err := loadView(db, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s (run %s, %s)\n\n", run.SourceFile, run.ID, run.Status)
		sum := view.Summary
		fmt.Printf("Responses: %d matched, %d classified, %d failed\n", view.Matched, sum.Classified, sum.Errored)
		fmt.Printf("Average sentiment: %.2f  Average confidence: %.0f\n", sum.AvgSentiment, sum.AvgConfidence)

		for _, field := range session.ChartFields {
			counts := view.Counts[field]
			if len(counts) == 0 {
				continue
			}
			fmt.Printf("\n%s:\n", strings.ToUpper(field[:1])+field[1:])
			writeCounts(os.Stdout, counts, st.TopN)
		}

		if len(view.Topics) > 0 {
			fmt.Println("\nTopic tree:")
			writeTopics(os.Stdout, view.Topics, 1)
		}

		if s := view.Series; len(s.Dates) > 0 {
			fmt.Printf("\nBy %s, per %s:\n", st.GroupBy, st.Period)
			fmt.Printf("  %-12s", "")
			for _, v := range s.Values {
				fmt.Printf(" %10s", v)
			}
			fmt.Println()
			for _, b := range s.Buckets {
				fmt.Printf("  %-12s", b.Date.Format("2006-01-02"))
				for _, v := range s.Values {
					fmt.Printf(" %10d", b.Counts[v])
				}
				fmt.Println()
			}
		}
		return nil
	},
}

func init() {
	addViewFlags(reportCmd)
	reportCmd.Flags().StringVar(&viewOpts.period, "period", "week", "Time series bucket: day, week or month")
	reportCmd.Flags().StringVar(&viewOpts.group, "group", "sentiment", "Dimension to chart over time")
	reportCmd.Flags().IntVar(&viewOpts.top, "top", 10, "Show only the N most frequent values (0 for all)")
	reportCmd.Flags().StringArrayVar(&viewOpts.expand, "expand", nil, "Show the subtopics of a topic path such as Delivery/Speed (repeatable)")
}

// writeCounts prints counts largest first. A top-N cut arrives smallest
// first, an uncut list already largest first.
func writeCounts(w io.Writer, counts []aggregate.Count, topN int) {
	if topN > 0 {
		counts = slices.Clone(counts)
		slices.Reverse(counts)
	}
	for _, c := range counts {
		fmt.Fprintf(w, "  %-24s %d\n", c.Value, c.Count)
	}
}

// writeTopics prints a topic forest, descending only into expanded nodes.
func writeTopics(w io.Writer, nodes []aggregate.TreeView, depth int) {
	for _, n := range nodes {
		marker := " "
		if len(n.Children) > 0 {
			marker = "+"
			if n.Expanded {
				marker = "-"
			}
		}
		fmt.Fprintf(w, "%s%s %s (%d)\n", strings.Repeat("  ", depth), marker, n.Name, n.Count)
		if n.Expanded {
			writeTopics(w, n.Children, depth+1)
		}
	}
}

// --- export command ---

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export RUN",
	Short: "Write the (filtered) responses of a run as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, view, _, err := loadView(db, args[0])
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			fmt.Print(export.CSV(view.Records, run.Headers))
			return nil
		}
		if err := export.WriteFile(exportOutput, view.Records, run.Headers); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d responses to %s\n", len(view.Records), exportOutput)
		return nil
	},
}

func init() {
	addViewFlags(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}

// --- summarize command ---

var (
	summaryKind string
	question    string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize RUN",
	Short: "Write a summary, recommendations or an answer about a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := summarize.ParseKind(summaryKind)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		_, view, _, err := loadView(db, args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		text, err := newGenerator().Generate(ctx, kind, view.Records, question)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	addViewFlags(summarizeCmd)
	summarizeCmd.Flags().StringVarP(&summaryKind, "kind", "k", "summary", "What to write: summary, recommendations or answer")
	summarizeCmd.Flags().StringVarP(&question, "question", "q", "", "Question for --kind answer, focus note otherwise")
}

// newGenerator returns a generator on the configured provider. Without a
// provider it still serves summaries and recommendations from the counts.
func newGenerator() *summarize.Generator {
	return summarize.New(llm.CreateProvider(cfg.LLMSettings()), 0)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")

		g, ctx := errgroup.WithContext(ctx)
		gen := newGenerator()
		g.Go(func() error {
			return server.Serve(ctx, db, gen, port)
		})
		g.Go(func() error {
			<-ctx.Done()
			fmt.Println("\nShutting down...")
			return nil
		})
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func findRun(db *database.DB, ref string) (*database.Run, error) {
	run, err := db.FindRun(ref)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %q not found", ref)
	}
	return run, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath(), database.WithBusyTimeout(cfg.Output.BusyTimeout))
}
