package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendlog/internal/backend"
	"spendlog/internal/cli"
	"spendlog/internal/config"
	"spendlog/internal/log"
	"spendlog/internal/services"
)

// app carries per-invocation state shared by every subcommand.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "spendlog-admin",
		Short: "Operator tasks for a spendlog deployment",
		Long: `spendlog-admin manages the spendlog store directly: apply schema
migrations, manage users and their daily allowance, and run the analytics
report for a user without going through the HTTP API.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}

	flags := root.PersistentFlags()
	flags.String("backend", "sqlite", "data backend (sqlite, memory)")
	flags.String("db", "./data/spendlog.db", "SQLite database path")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	_ = a.v.BindPFlag("data_backend", flags.Lookup("backend"))
	_ = a.v.BindPFlag("sqlite_db_path", flags.Lookup("db"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log_format", flags.Lookup("log-format"))
	a.v.AutomaticEnv()

	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.userCmd())
	root.AddCommand(a.analyticsCmd())
	return root
}

// init resolves configuration. Flags win over the environment, which wins
// over flag defaults.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg := config.Load()
	cfg.DataBackend = a.v.GetString("data_backend")
	cfg.SQLiteDBPath = a.v.GetString("sqlite_db_path")
	cfg.LogLevel = a.v.GetString("log_level")
	cfg.LogFormat = a.v.GetString("log_format")
	a.cfg = cfg

	a.logger = log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentAdmin,
		Output:    cmd.ErrOrStderr(),
	})
	return nil
}

// adminServices is the server's service graph without HTTP or caching.
type adminServices struct {
	users     *services.UserService
	analytics *services.AnalyticsService
	close     func() error
}

func (a *app) openServices(ctx context.Context, withNarrator bool) (*adminServices, error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(a.logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", bc.Type, err)
	}

	var opts []services.AnalyticsOption
	if withNarrator {
		cfg := *a.cfg
		cfg.InsightEnabled = true
		opts = append(opts, services.WithNarrator(cli.NewNarrator(&cfg, a.logger)))
	}
	analytics := services.NewAnalyticsService(res.Store, a.logger, opts...)

	return &adminServices{
		users:     services.NewUserService(res.Store, analytics, a.logger),
		analytics: analytics,
		close:     res.Cleanup,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
