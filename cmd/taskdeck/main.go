package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	serveradapter "github.com/hylla/taskdeck/internal/adapters/server"
	"github.com/hylla/taskdeck/internal/adapters/storage/sqlite"
	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/app"
	"github.com/hylla/taskdeck/internal/config"
	"github.com/hylla/taskdeck/internal/layout"
	"github.com/hylla/taskdeck/internal/platform"
	"github.com/hylla/taskdeck/internal/tui"
)

// version is stamped at build time.
var version = "dev"

// layoutRetention bounds how long frozen layouts stay in the cache.
const layoutRetention = 30 * 24 * time.Hour

// program is the part of tea.Program the TUI command needs.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(ctx context.Context, m tea.Model) program {
	return tea.NewProgram(m, tea.WithContext(ctx))
}

// serveCommandRunner starts the HTTP+MCP bridge.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes args against it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// cliOptions holds the persistent flags.
type cliOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	stderr     io.Writer
}

// runtimeEnv holds the collaborators one command flow needs.
type runtimeEnv struct {
	cfg        config.Config
	configPath string
	paths      platform.Paths
	logger     *runtimeLogger
	repo       *sqlite.Repository
	client     *api.Client
	svc        *app.Service
}

// resolvePaths applies app-name and dev-mode path resolution.
func (o *cliOptions) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// openRuntime loads env files and config, then wires the client, storage,
// layout engine and service. Callers must Close the result.
func openRuntime(ctx context.Context, opts *cliOptions, command string) (*runtimeEnv, error) {
	paths, err := opts.resolvePaths()
	if err != nil {
		return nil, err
	}
	if err := loadEnvFiles(".env", paths.EnvPath); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TASKDECK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("TASKDECK_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath, paths.LogDir))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	cfg = cfg.WithEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger, err := newRuntimeLogger(opts.stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "tui" {
		// The board owns the terminal; runtime logs go to the dev file only.
		logger.SetConsoleEnabled(false)
	}
	env := &runtimeEnv{cfg: cfg, configPath: configPath, paths: paths, logger: logger}

	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	tokens, err := tokenSource(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("configure credentials: %w", err)
	}
	if tokens == nil {
		logger.Warn("no credential configured", "token_env", cfg.Auth.TokenEnv)
	}
	client, err := api.New(api.Config{
		BaseURL:  cfg.API.BaseURL,
		Audience: cfg.API.Audience,
		Timeout:  cfg.API.Timeout.Duration,
	}, tokens, api.WithLogger(logger), api.WithRequestIDs(uuid.NewString))
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("configure api client: %w", err)
	}
	env.client = client

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		env.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	env.repo = repo
	if pruned, err := repo.PruneLayouts(ctx, time.Now().Add(-layoutRetention)); err != nil {
		logger.Warn("layout cache prune failed", "err", err)
	} else if pruned > 0 {
		logger.Debug("layout cache pruned", "rows", pruned)
	}

	engine := layout.NewEngine(layoutOptions(cfg.Layout), layout.WithStore(repo), layout.WithLogger(logger))
	env.svc = app.NewService(client, uuid.NewString, time.Now, app.ServiceConfig{
		Journal: repo,
		Engine:  engine,
		Logger:  logger,
	})
	logger.Debug("application service initialized", "base_url", cfg.API.BaseURL, "audience", cfg.API.Audience)
	return env, nil
}

// Close releases storage and the log file.
func (e *runtimeEnv) Close() {
	if e == nil {
		return
	}
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", err)
		}
	}
	if err := e.logger.Close(); err != nil && e.logger.ConsoleEnabled() {
		e.logger.Warn("close runtime log sink", "err", err)
	}
}

// withRuntime opens a runtime for one command and closes it afterwards.
func withRuntime(cmd *cobra.Command, opts *cliOptions, command string, fn func(context.Context, *runtimeEnv) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openRuntime(ctx, opts, command)
	if err != nil {
		return err
	}
	defer env.Close()

	env.logger.Info("command flow start", "command", command)
	if err := fn(ctx, env); err != nil {
		env.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, describeError(err))
	}
	env.logger.Info("command flow complete", "command", command)
	return nil
}

// tokenSource selects client credentials when a client id is configured
// and the static bearer token otherwise. It returns nil when neither is set.
func tokenSource(ctx context.Context, cfg config.Config) (oauth2.TokenSource, error) {
	if strings.TrimSpace(cfg.Auth.ClientID) == "" {
		return api.StaticToken(cfg.Auth.Token), nil
	}
	return api.ClientCredentials{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.ClientSecret(os.Getenv),
		TokenURL:     cfg.Auth.TokenURL,
		Audience:     cfg.API.Audience,
		Scopes:       cfg.Auth.Scopes,
	}.TokenSource(ctx)
}

// layoutOptions maps the [layout] section onto simulation options.
func layoutOptions(cfg config.LayoutConfig) layout.Options {
	opts := layout.DefaultOptions()
	opts.Budget = cfg.Budget.Duration
	opts.MinMotion = cfg.MinMotion
	opts.Padding = cfg.Padding
	opts.Charge = cfg.Charge
	opts.CenterStrength = cfg.CenterStrength
	return opts
}

// loadEnvFiles loads the env files that exist. Variables already set in the
// process win.
func loadEnvFiles(paths ...string) error {
	var existing []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		existing = append(existing, path)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// runTUI starts the board.
func runTUI(ctx context.Context, env *runtimeEnv) error {
	cfg := env.cfg
	m := tui.NewModel(
		env.svc,
		tui.WithConfirmDelete(cfg.UI.ConfirmDelete),
		tui.WithVisualization(cfg.UI.DefaultView == config.ViewVisualization),
		tui.WithKeyConfig(tui.KeyConfig{
			Visualize:   cfg.Keys.Visualize,
			ActivityLog: cfg.Keys.ActivityLog,
			Yank:        cfg.Keys.Yank,
		}),
	)
	env.logger.Info("starting tui program loop")
	if _, err := programFactory(ctx, m).Run(); err != nil {
		return fmt.Errorf("run tui program: %w", err)
	}
	return nil
}

// parseBoolEnv reads a boolean environment variable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
