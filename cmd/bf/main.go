package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"badgeforge/internal/catalogue"
	"badgeforge/internal/config"
	"badgeforge/internal/db"
	"badgeforge/internal/gh"
	"badgeforge/internal/journal"
	"badgeforge/internal/migrate"
	"badgeforge/internal/planner"
	"badgeforge/internal/progress"
	"badgeforge/internal/report"
	"badgeforge/internal/server"
	"badgeforge/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "bf",
	Short: "Badgeforge CLI",
	Long: `Badgeforge tracks progress toward GitHub achievement badges and automates
the ones that can be earned on the spot.

- status/summary: compute badge progress from the live API (nothing cached)
- plan: bucket remaining badges by how automatable they are
- earn: run the timed workflows for Quickdraw and YOLO
- runs/sweep: inspect recorded runs and delete leftover throwaway repos`,
}

func main() {
	cobra.OnInitialize(initConfig)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BADGEFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("token", "GITHUB_TOKEN", "BADGEFORGE_TOKEN")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("token", "", "GitHub token (defaults to GITHUB_TOKEN)")
	rootCmd.PersistentFlags().Bool("no-journal", false, "disable the run journal")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("no-journal", rootCmd.PersistentFlags().Lookup("no-journal"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(earnCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(serveCmd())
}

// deps bundles everything a command needs.
type deps struct {
	Config    *config.Config
	Client    *gh.Client
	Catalogue *catalogue.Catalogue
	Computer  *progress.Computer
	Planner   *planner.Planner
	Journal   *journal.Journal // nil when disabled
	closeDB   func()
}

func (d *deps) Close() {
	if d.closeDB != nil {
		d.closeDB()
	}
}

func buildDeps(needJournal bool) (*deps, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	token := viper.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("GitHub token required; set GITHUB_TOKEN or use --token")
	}
	client := gh.New(token)
	client.BaseURL = cfg.GitHub.BaseURL

	cat := catalogue.Default()
	computer, err := progress.NewComputer(cat, client)
	if err != nil {
		return nil, err
	}
	pl, err := planner.New(cat)
	if err != nil {
		return nil, err
	}
	d := &deps{Config: cfg, Client: client, Catalogue: cat, Computer: computer, Planner: pl}
	if needJournal && !viper.GetBool("no-journal") {
		conn, err := db.Open(db.Config{Workspace: workspace})
		if err != nil {
			return nil, err
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, err
		}
		d.Journal = journal.New(conn)
		d.closeDB = func() { conn.Close() }
	}
	return d, nil
}

func withDeps(needJournal bool, fn func(ctx context.Context, d *deps) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(needJournal)
		if err != nil {
			return err
		}
		defer d.Close()
		return fn(cmd.Context(), d)
	}
}

func buildReport(ctx context.Context, d *deps) (report.Report, error) {
	login, err := d.Client.Login(ctx)
	if err != nil {
		return report.Report{}, fmt.Errorf("authenticate: %w", err)
	}
	entries := d.Computer.ComputeAll(ctx, d.Catalogue)
	plan, err := d.Planner.Classify(entries)
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(login, time.Now(), entries, plan), nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Full badge progress report",
		RunE: withDeps(false, func(ctx context.Context, d *deps) error {
			r, err := buildReport(ctx, d)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r)
			}
			fmt.Printf("Badge progress for %s (%d/%d achieved, %.1f%%)\n\n",
				r.Login, r.Achieved, r.Total, r.Percent)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Badge", "Current", "Tier", "Next Goal"})
			for _, e := range r.Entries {
				tw.AppendRow(table.Row{
					e.Definition.Name,
					report.ValueCell(e),
					report.TierCell(e),
					report.NextCell(e),
				})
			}
			tw.Render()
			return nil
		}),
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Quick badge summary and next targets",
		RunE: withDeps(false, func(ctx context.Context, d *deps) error {
			r, err := buildReport(ctx, d)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r)
			}
			fmt.Printf("Badge summary for %s\n\n", r.Login)
			for _, e := range r.Entries {
				fmt.Printf("  %-22s %s\n", e.Definition.Name+":", report.TierCell(e))
			}
			fmt.Printf("\nTotal: %d/%d badges achieved (%.1f%%)\n", r.Achieved, r.Total, r.Percent)
			if len(r.NextTargets) > 0 {
				fmt.Println("\nNext easiest targets:")
				for _, t := range r.NextTargets {
					fmt.Printf("  - %s: %d more for %s tier\n", t.Achievement, t.Remaining, t.Tier)
				}
			}
			return nil
		}),
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Earning plan by automation feasibility",
		RunE: withDeps(false, func(ctx context.Context, d *deps) error {
			r, err := buildReport(ctx, d)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r.Plan)
			}
			printBucket("Already earned", r.Plan.Completed, true)
			printBucket("Automatable now (bf earn)", r.Plan.Immediate, false)
			printBucket("Quick manual wins", r.Plan.Quick, false)
			printBucket("Short-term, tool-assisted", r.Plan.ShortTerm, false)
			printBucket("Long-term", r.Plan.LongTerm, false)
			return nil
		}),
	}
}

func printBucket(title string, entries []progress.Progress, showTier bool) {
	if len(entries) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, e := range entries {
		if showTier {
			fmt.Printf("  - %s (%s tier)\n", e.Definition.Name, e.AchievedTier)
			continue
		}
		line := fmt.Sprintf("  - %s: %s", e.Definition.Name, e.Definition.Description)
		if e.Next != nil {
			line += fmt.Sprintf(" (next: %s, %d more)", e.Next.Label, e.Next.Remaining)
		}
		fmt.Println(line)
	}
	fmt.Println()
}

func earnCmd() *cobra.Command {
	earn := &cobra.Command{
		Use:   "earn",
		Short: "Run the timed badge workflows",
	}
	earn.AddCommand(earnWorkflowCmd("quickdraw", workflow.KindFastClose,
		"Create an issue in a throwaway repo, wait, close it"))
	earn.AddCommand(earnWorkflowCmd("yolo", workflow.KindUnreviewedMerge,
		"Merge a pull request in a throwaway repo without review"))
	earn.AddCommand(earnImmediateCmd())
	return earn
}

func buildEngine(d *deps, delay time.Duration) *workflow.Engine {
	eng := workflow.New(d.Client)
	eng.CloseDelay = d.Config.CloseDelay()
	if delay > 0 {
		eng.CloseDelay = delay
	}
	if d.Journal != nil {
		eng.Recorder = d.Journal
	}
	return eng
}

func earnWorkflowCmd(name string, kind workflow.Kind, short string) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: withDeps(true, func(ctx context.Context, d *deps) error {
			run, err := buildEngine(d, delay).Execute(ctx, kind)
			if err != nil {
				return err
			}
			return printRun(run)
		}),
	}
	if kind == workflow.KindFastClose {
		cmd.Flags().DurationVar(&delay, "delay", 0, "wait before closing (default from config, 30s)")
	}
	return cmd
}

func earnImmediateCmd() *cobra.Command {
	var noVerify bool
	cmd := &cobra.Command{
		Use:   "immediate",
		Short: "Run every fully automatable workflow, then re-check progress",
		RunE: withDeps(true, func(ctx context.Context, d *deps) error {
			eng := buildEngine(d, 0)
			// a failed run is a displayed outcome, not a command error
			for _, kind := range []workflow.Kind{workflow.KindFastClose, workflow.KindUnreviewedMerge} {
				run, err := eng.Execute(ctx, kind)
				if err != nil {
					return err
				}
				if err := printRun(run); err != nil {
					return err
				}
			}
			if noVerify {
				return nil
			}
			r, err := buildReport(ctx, d)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r)
			}
			fmt.Printf("\nProgress after workflows: %d/%d badges achieved (%.1f%%)\n",
				r.Achieved, r.Total, r.Percent)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the progress re-check")
	return cmd
}

func printRun(run workflow.Run) error {
	if viper.GetBool("json") {
		return printJSON(run)
	}
	outcome := "succeeded"
	if !run.Result.Succeeded {
		outcome = "failed: " + run.Result.Reason
	}
	fmt.Printf("%s run %s %s\n", run.Kind, run.ID, outcome)
	return nil
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded workflow runs",
		RunE: withDeps(true, func(ctx context.Context, d *deps) error {
			if d.Journal == nil {
				return fmt.Errorf("run journal disabled")
			}
			items, err := d.Journal.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Kind", "State", "Reason", "Started"})
			for _, r := range items {
				tw.AppendRow(table.Row{r.ID, r.Kind, r.State, r.Reason, r.StartedAt})
			}
			tw.Render()
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max runs to list")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete throwaway repositories left behind by failed cleanups",
		RunE: withDeps(true, func(ctx context.Context, d *deps) error {
			if d.Journal == nil {
				return fmt.Errorf("run journal disabled")
			}
			orphans, err := d.Journal.Orphans(ctx)
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Println("no orphaned repositories recorded")
				return nil
			}
			swept := 0
			for _, o := range orphans {
				ref := workflow.ArtifactRef{Kind: workflow.ArtifactKind(o.Kind), Repo: o.Repo}
				if err := d.Client.DeleteArtifact(ctx, ref); err != nil {
					slog.Warn("sweep failed", "repo", o.Repo, "error", err)
					continue
				}
				if err := d.Journal.MarkSwept(ctx, o.RunID, o.Position); err != nil {
					slog.Warn("mark swept failed", "repo", o.Repo, "error", err)
				}
				swept++
			}
			fmt.Printf("swept %d of %d orphaned repositories\n", swept, len(orphans))
			return nil
		}),
	}
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		RunE: withDeps(true, func(ctx context.Context, d *deps) error {
			login, err := d.Client.Login(ctx)
			if err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}
			handler, err := server.New(server.Config{
				Catalogue: d.Catalogue,
				Computer:  d.Computer,
				Planner:   d.Planner,
				Journal:   d.Journal,
				Login:     login,
				APIKey:    d.Config.Server.APIKey,
			})
			if err != nil {
				return err
			}
			if port == 0 {
				port = d.Config.Server.Port
			}
			addr := fmt.Sprintf(":%d", port)
			slog.Info("serving status API", "addr", addr)
			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 60 * time.Second,
			}
			return srv.ListenAndServe()
		}),
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
