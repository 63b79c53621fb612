package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/taskdeck/internal/adapters/server"
	servercommon "github.com/hylla/taskdeck/internal/adapters/server/common"
	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/app"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/query"
)

// errNotSignedIn reports a read attempted without any credential.
var errNotSignedIn = errors.New("not signed in: set TASKDECK_TOKEN or configure [auth] client credentials")

// newRootCommand builds the taskdeck command tree. The bare command opens the board.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{appName: "taskdeck", stderr: stderr}
	if envApp := strings.TrimSpace(os.Getenv("TASKDECK_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("TASKDECK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}

	root := &cobra.Command{
		Use:   "taskdeck",
		Short: "Terminal client for the task backend",
		Long: `taskdeck shows open tasks, completed tasks and pending accounts from the
task backend. Open tasks can be drawn as bubbles sized by urgency and
remaining effort. Subcommands run single reads and writes, and serve
exposes a local HTTP and MCP bridge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "tui", runTUI)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newTasksCommand(opts, stdout),
		newCompletedCommand(opts, stdout),
		newUsersCommand(opts, stdout),
		newMeCommand(opts, stdout),
		newTextCommand(opts, stdout, "entity", "Call the authenticated entity probe", func(ctx context.Context, env *runtimeEnv) (string, error) {
			return env.svc.Entity(ctx)
		}),
		newTextCommand(opts, stdout, "hello", "Call the public greeting endpoint", func(ctx context.Context, env *runtimeEnv) (string, error) {
			return env.client.Hello(ctx)
		}),
		newCompleteCommand(opts, stdout),
		newReopenCommand(opts, stdout),
		newApproveCommand(opts, stdout),
		newDeleteCommand(opts, stdout),
		newLayoutCommand(opts, stdout),
		newActivityCommand(opts, stdout),
		newServeCommand(opts),
		newPathsCommand(opts, stdout),
	)
	return root
}

func newTasksCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List open tasks with derived metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "tasks", func(ctx context.Context, env *runtimeEnv) error {
				tasks, err := bridge(env).ListTasks(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(stdout, tasks)
				}
				if len(tasks) == 0 {
					_, err := fmt.Fprintln(stdout, "No open tasks.")
					return err
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						task.ID,
						task.PriorityLabel,
						task.Status,
						strconv.FormatFloat(task.RemainingEffort, 'f', 1, 64),
						dueText(task),
						task.Title,
					})
				}
				return writeTable(stdout, []string{"ID", "Priority", "Status", "Left", "Due", "Title"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newCompletedCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "completed",
		Short: "List completed tasks, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "completed", func(ctx context.Context, env *runtimeEnv) error {
				tasks, err := bridge(env).ListCompletedTasks(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(stdout, tasks)
				}
				if len(tasks) == 0 {
					_, err := fmt.Fprintln(stdout, "No completed tasks.")
					return err
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					done := "-"
					if task.CompletedAt != nil {
						done = task.CompletedAt.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{task.ID, done, task.Title})
				}
				return writeTable(stdout, []string{"ID", "Completed", "Title"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newUsersCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "users", func(ctx context.Context, env *runtimeEnv) error {
				if err := env.svc.Refetch(ctx, app.ListUsers); err != nil {
					return err
				}
				snap := env.svc.Users()
				if snap.State == query.Idle {
					return errNotSignedIn
				}
				if asJSON {
					return writeJSON(stdout, snap.Data)
				}
				rows := make([][]string, 0, len(snap.Data))
				for _, user := range snap.Data {
					rows = append(rows, []string{
						string(user.ID),
						user.Email,
						user.Name,
						yesNo(user.IsAdmin),
						yesNo(user.Approved),
					})
				}
				return writeTable(stdout, []string{"ID", "Email", "Name", "Admin", "Approved"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newMeCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account and token claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "me", func(ctx context.Context, env *runtimeEnv) error {
				if err := env.svc.Refetch(ctx, app.ListMe); err != nil {
					return err
				}
				snap := env.svc.Me()
				if snap.State == query.Idle {
					return errNotSignedIn
				}
				me := snap.Data
				lines := []string{
					fmt.Sprintf("user: %s <%s>", me.DisplayName(), me.Email),
					fmt.Sprintf("id: %s", me.ID),
					fmt.Sprintf("admin: %s", yesNo(me.IsAdmin)),
					fmt.Sprintf("approved: %s", yesNo(me.Approved)),
				}
				if session, err := env.svc.Session(ctx); err == nil {
					lines = append(lines, fmt.Sprintf("subject: %s", session.Subject))
					if !session.ExpiresAt.IsZero() {
						lines = append(lines, fmt.Sprintf("expires: %s", session.ExpiresAt.Local().Format(time.RFC3339)))
					}
				} else {
					env.logger.Debug("session claims unavailable", "err", err)
				}
				_, err := fmt.Fprintln(stdout, strings.Join(lines, "\n"))
				return err
			})
		},
	}
}

// newTextCommand builds a command that prints one plain-text response.
func newTextCommand(opts *cliOptions, stdout io.Writer, name, short string, fetch func(context.Context, *runtimeEnv) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, name, func(ctx context.Context, env *runtimeEnv) error {
				text, err := fetch(ctx, env)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(stdout, strings.TrimRight(text, "\n"))
				return err
			})
		},
	}
}

func newCompleteCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "complete", func(ctx context.Context, env *runtimeEnv) error {
				if err := bridge(env).CompleteTask(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(stdout, "completed task %s\n", args[0])
				return err
			})
		},
	}
}

func newReopenCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <id>",
		Short: "Return a completed task to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "reopen", func(ctx context.Context, env *runtimeEnv) error {
				task, err := bridge(env).ReopenTask(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(stdout, "reopened task %s (%s)\n", task.ID, task.Title)
				return err
			})
		},
	}
}

func newApproveCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <user-id>",
		Short: "Approve a pending account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "approve", func(ctx context.Context, env *runtimeEnv) error {
				id := domain.ID(strings.TrimSpace(args[0]))
				if id == "" {
					return domain.ErrInvalidID
				}
				if err := env.svc.ApproveUser(ctx, id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(stdout, "approved user %s\n", id)
				return err
			})
		},
	}
}

func newDeleteCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "delete", func(ctx context.Context, env *runtimeEnv) error {
				id := domain.ID(strings.TrimSpace(args[0]))
				if id == "" {
					return domain.ErrInvalidID
				}
				if err := env.svc.DeleteTask(ctx, id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(stdout, "deleted task %s\n", id)
				return err
			})
		},
	}
}

func newLayoutCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var (
		asJSON        bool
		width, height float64
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Compute the frozen bubble layout of open tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "layout", func(ctx context.Context, env *runtimeEnv) error {
				req := servercommon.LayoutRequest{Width: env.cfg.Layout.Width, Height: env.cfg.Layout.Height}
				if width > 0 {
					req.Width = width
				}
				if height > 0 {
					req.Height = height
				}
				nodes, err := bridge(env).TaskLayout(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(stdout, nodes)
				}
				if len(nodes) == 0 {
					_, err := fmt.Fprintln(stdout, "No open tasks to lay out.")
					return err
				}
				rows := make([][]string, 0, len(nodes))
				for _, node := range nodes {
					rows = append(rows, []string{
						node.TaskID,
						strconv.FormatFloat(node.X, 'f', 1, 64),
						strconv.FormatFloat(node.Y, 'f', 1, 64),
						strconv.FormatFloat(node.Radius, 'f', 1, 64),
						strconv.FormatFloat(node.Opacity, 'f', 2, 64),
						node.Label,
					})
				}
				return writeTable(stdout, []string{"Task", "X", "Y", "Radius", "Opacity", "Label"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().Float64Var(&width, "width", 0, "canvas width (default layout.width)")
	cmd.Flags().Float64Var(&height, "height", 0, "canvas height (default layout.height)")
	return cmd
}

func newActivityCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent local mutation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "activity", func(ctx context.Context, env *runtimeEnv) error {
				entries, err := bridge(env).RecentActivity(ctx, limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					_, err := fmt.Fprintln(stdout, "No activity recorded.")
					return err
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					result := "ok"
					if entry.Error != "" {
						result = entry.Error
					}
					rows = append(rows, []string{entry.At.Local().Format("2006-01-02 15:04:05"), entry.Op, entry.Target, result})
				}
				return writeTable(stdout, []string{"At", "Op", "Target", "Result"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", servercommon.DefaultActivityLimit, "maximum entries to show")
	return cmd
}

func newServeCommand(opts *cliOptions) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP and MCP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "serve", func(ctx context.Context, env *runtimeEnv) error {
				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, env.cfg.Server.Bind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, env.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, env.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
				}
				env.logger.Info("serving bridge", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Tasks: bridge(env),
					Ready: func(ctx context.Context) error {
						if _, err := env.client.Session(ctx); api.IsAuthRequired(err) {
							return errNotSignedIn
						}
						return nil
					},
					RequestIDs: uuid.NewString,
					Logger:     env.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default server.bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default server.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default server.mcp_endpoint)")
	return cmd
}

func newPathsCommand(opts *cliOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// bridge returns the transport-facing adapter, which the CLI shares with serve.
func bridge(env *runtimeEnv) *servercommon.AppServiceAdapter {
	return servercommon.NewAppServiceAdapter(env.svc, time.Now)
}

// writeTable renders rows as a bordered table.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func dueText(task servercommon.TaskView) string {
	switch {
	case task.DueDate == nil:
		return "-"
	case task.Overdue:
		return "OVERDUE " + task.DueDate.Format("2006-01-02")
	default:
		return task.DueDate.Format("2006-01-02")
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// describeError adds the sign-in hint to credential failures.
func describeError(err error) error {
	if api.IsAuthRequired(err) || errors.Is(err, servercommon.ErrUnavailable) {
		return fmt.Errorf("%w (%s)", err, errNotSignedIn.Error())
	}
	return err
}
