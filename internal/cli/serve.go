package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/roach88/bindery/internal/auth"
	"github.com/roach88/bindery/internal/binding"
	"github.com/roach88/bindery/internal/config"
	"github.com/roach88/bindery/internal/hub"
	"github.com/roach88/bindery/internal/store"
	"github.com/roach88/bindery/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Listen     string
	LogFormat  string

	// Environ overrides the process environment when non-nil (for testing).
	Environ map[string]string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve [specs-dir]",
		Short: "Serve resource bindings over websockets",
		Long: `Start the bindery server.

The server compiles the resource specs, opens the SQLite database
(creating it if it doesn't exist) and accepts websocket connections on
/ws. Every resource is served as a stream of the same name.

Configuration is read from the --config file, then BINDERY_* environment
variables, then flags.

Example:
  bindery serve --db ./bindery.db ./specs
  bindery serve --config ./bindery.yaml --listen :9000`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			specsDir := ""
			if len(args) == 1 {
				specsDir = args[0]
			}
			return runServe(opts, specsDir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	return cmd
}

// loadServeConfig layers flags over the file and environment configuration.
func loadServeConfig(opts *ServeOptions, specsDir string) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.Environ)
	if err != nil {
		return config.Config{}, err
	}
	if specsDir != "" {
		cfg.SpecsDir = specsDir
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func runServe(opts *ServeOptions, specsDir string, cmd *cobra.Command) error {
	cfg, err := loadServeConfig(opts, specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.LogFormat, opts.Verbose))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, st, err := buildServer(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start server", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	slog.Info("server starting", "listen", cfg.Listen, "db", cfg.Database, "specs_dir", cfg.SpecsDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Listen)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildServer wires the store, hub, bindings and transport for cfg. The
// caller owns the returned store.
func buildServer(ctx context.Context, cfg config.Config) (*transport.Server, *store.Store, error) {
	loadResult, loadErrors := LoadSpecs(cfg.SpecsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, nil, loadErrors[0]
	}
	slog.Info("specs compiled", "resources", len(loadResult.Resources))

	defaults, err := binding.ParseChain(cfg.DefaultPermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("default_permissions: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	// No connection survives a restart.
	cleared, err := st.ClearSubscriptions(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	slog.Info("database ready", "path", cfg.Database, "stale_subscriptions", cleared)

	h := hub.New(hub.WithRecorder(st))
	v := validator.New(validator.WithRequiredStructEnabled())

	bindings := make([]*binding.Binding, 0, len(loadResult.Resources))
	for _, spec := range loadResult.Resources {
		b, err := binding.New(spec, st, h,
			binding.WithDefaultPermissions(defaults),
			binding.WithPageSize(cfg.PageSize),
			binding.WithValidator(v),
		)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		slog.Debug("resource bound", "stream", spec.Name, "actions", b.Table().Names(), "permissions", b.Permissions().Names())
		bindings = append(bindings, b)
	}

	d, err := binding.NewDemux(bindings...)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	authn := auth.NewJWT([]byte(cfg.Auth.JWTSecret),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAnonymous(cfg.Auth.AllowAnonymous),
	)
	srv := transport.New(d, h,
		transport.WithAuthenticator(authn),
		transport.WithHealthCheck(st),
		transport.WithTransportConfig(cfg.Transport),
	)
	return srv, st, nil
}
