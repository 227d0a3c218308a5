/*
main.go - Application entry point

PURPOSE:
  Runs the billing engine: the HTTP API, a terminal summary of one work
  order, and the demo scenario loader. Handles configuration, dependency
  injection, and graceful shutdown.

COMMANDS:
  serve                 Start the HTTP API
  summary <work-order>  Print the live aggregation as a table
  scenario list         List demo scenarios
  scenario load <id>    Reset the database and load a scenario

PERSISTENT FLAGS:
  --config   Path to billing.yml (default: ./billing.yml, optional)
  --db       SQLite database path, overrides server.db
             Use ":memory:" for in-memory database
  --port     HTTP server port, overrides server.port
  --log-level debug, info, warn or error

ENVIRONMENT:
  Every flag can be set as BILLING_<FLAG>, e.g. BILLING_DB=./data/billing.db.
  A .env file in the working directory is loaded first when present.
  TRELLO_KEY / TRELLO_TOKEN override the task board credentials.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server serve --db=./data/billing.db
  ./server scenario load basic --db=./data/billing.db
  ./server summary WO-1001 --db=./data/billing.db

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: billing.yml
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/billing-engine/activity"
	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/store/sqlite"
	"github.com/warp/billing-engine/taskboard"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Work order billing engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BILLING")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", config.Path(""), "path to billing.yml")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides server.db)")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP server port (overrides server.port)")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(scenarioCmd())
}

// =============================================================================
// WIRING
// =============================================================================

type app struct {
	cfg     *config.Config
	store   *sqlite.Store
	service *billing.Service
	board   *taskboard.Client // nil when the task board is not configured
	logger  *slog.Logger
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if db := viper.GetString("db"); db != "" {
		cfg.Server.DB = db
	}
	if port := viper.GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if key := os.Getenv("TRELLO_KEY"); key != "" {
		cfg.Taskboard.TrelloKey = key
	}
	if token := os.Getenv("TRELLO_TOKEN"); token != "" {
		cfg.Taskboard.TrelloToken = token
	}
	return cfg, cfg.Validate()
}

// withApp opens the store, builds the service and closes the store after fn.
func withApp(fn func(a *app) error) error {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	var mover billing.TaskMover
	var board *taskboard.Client
	if cfg.TaskboardEnabled() {
		board = taskboard.New(cfg.Taskboard.TrelloKey, cfg.Taskboard.TrelloToken, taskboard.WithLogger(logger))
		mover = board
	} else {
		logger.Info("task board credentials not configured, status sync disabled")
	}

	svc := billing.NewService(store, activity.New(cfg.Activity()), cfg.Billing(), mover, logger)
	return fn(&app{cfg: cfg, store: store, service: svc, board: board, logger: logger})
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				handler := api.NewHandler(a.service, a.store, a.cfg.Billing(), api.NewCreatorOrAdmin(a.cfg.Admins), a.logger)
				router := api.NewRouter(handler, a.cfg.Server.CORSOrigins)

				server := &http.Server{
					Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
					Handler:      router,
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 15 * time.Second,
					IdleTimeout:  60 * time.Second,
				}

				errc := make(chan error, 1)
				go func() {
					a.logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port), "db", a.cfg.Server.DB)
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errc <- err
					}
					close(errc)
				}()

				select {
				case err := <-errc:
					return fmt.Errorf("server failed: %w", err)
				case <-cmd.Context().Done():
				}

				a.logger.Info("shutting down server")
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("server forced to shutdown: %w", err)
				}
				a.logger.Info("server stopped")
				return nil
			})
		},
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <work-order>",
		Short: "Print the live aggregation of a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				view, err := a.service.View(cmd.Context(), billing.WorkOrderID(args[0]), nil)
				if err != nil {
					return err
				}
				renderView(os.Stdout, view)
				if a.board != nil && view.WorkOrder.ExternalTaskID != "" {
					reportCard(cmd.Context(), os.Stdout, a, view.WorkOrder)
				}
				return nil
			})
		},
	}
}

// reportCard prints where the linked card sits and flags a list that
// disagrees with the work order status.
func reportCard(ctx context.Context, out io.Writer, a *app, wo billing.WorkOrder) {
	card, status, ok, err := a.board.Locate(ctx, wo.ExternalTaskID, a.cfg.Billing().Lists)
	if err != nil {
		a.logger.Warn("task board lookup failed", "work_order", wo.ID, "card", wo.ExternalTaskID, "error", err)
		return
	}
	switch {
	case !ok:
		fmt.Fprintf(out, "Card %q is in an untracked list (%s)\n", card.Name, card.IDList)
	case status != wo.Status:
		fmt.Fprintf(out, "Card %q is in the %s list but the work order is %s\n", card.Name, status, wo.Status)
	default:
		fmt.Fprintf(out, "Card %q is in the %s list\n", card.Name, status)
	}
}

func renderView(out io.Writer, v *billing.WorkOrderView) {
	fmt.Fprintf(out, "%s  %s  [%s]\n", v.WorkOrder.ID, v.WorkOrder.Title, v.WorkOrder.Status)

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Activity", "Hours", "Cost rate", "Bill rate", "Cost", "Bill", "Memo"})
	for _, act := range v.Activities {
		label := act.Label
		if act.Defaulted {
			label += " *"
		}
		tw.AppendRow(table.Row{
			label,
			act.Hours.StringFixed(2),
			billing.FormatYen(act.CostRate),
			billing.FormatYen(act.BillRate),
			billing.FormatYen(act.CostAmount),
			billing.FormatYen(act.BillAmount),
			act.Memo,
		})
	}
	tw.AppendFooter(table.Row{
		"Total",
		v.Totals.TotalHours.StringFixed(2),
		"", "",
		billing.FormatYen(v.Totals.CostTotal),
		billing.FormatYen(v.Totals.BillTotal),
		"",
	})
	tw.Render()

	if len(v.Expenses) > 0 {
		et := table.NewWriter()
		et.SetOutputMirror(out)
		et.AppendHeader(table.Row{"#", "Category", "Cost", "Bill", "Memo"})
		for _, e := range v.Expenses {
			et.AppendRow(table.Row{e.Position + 1, e.Category, billing.FormatYen(e.CostTotal), billing.FormatYen(e.BillTotal), e.Memo})
		}
		et.Render()
	}

	fmt.Fprintf(out, "Materials: %s  Final amount: %s\n",
		billing.FormatYen(v.Totals.MaterialTotal), billing.FormatYen(v.Totals.FinalAmount))
	if v.Summary != nil {
		fmt.Fprintf(out, "Finalized %s: %s\n", v.Summary.CreatedAt.Format(time.RFC3339), billing.FormatYen(v.Summary.FinalAmount))
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func scenarioCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "scenario", Short: "Demo scenarios"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List demo scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Description"})
			for _, s := range api.Scenarios() {
				tw.AppendRow(table.Row{s.ID, s.Name, s.Description})
			}
			tw.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <id>",
		Short: "Reset the database and load a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				if err := api.LoadScenario(cmd.Context(), a.store, a.service, args[0], a.cfg.Billing().Zone); err != nil {
					return err
				}
				a.logger.Info("scenario loaded", "scenario", args[0], "db", a.cfg.Server.DB)
				return nil
			})
		},
	})
	return cmd
}
