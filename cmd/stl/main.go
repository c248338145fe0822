package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/app"
	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/logger"
	"stageline/internal/repo"
	"stageline/internal/server"
)

var appLog = logger.Nop()

var rootCmd = &cobra.Command{
	Use:   "stl",
	Short: "Stageline CLI",
	Long: `Stageline tracks staging furniture across the warehouse and client jobs.
Core concepts:
- Workspace: the .stageline directory holding the local database; an optional .env next to it is loaded on start.
- Item: a furniture or decor SKU with a total quantity and a warehouse location.
- Project: a client job. Items are assigned per unit; archiving a project releases its units.
- Staging state: pending (no date), upcoming (date in the future), staged (date today or earlier), archived.
- Availability: total minus units on active projects, never below zero; over-allocation is reported, not hidden.
- Invoice: priced rooms plus delivery and pickup fees, taxed by the job address.
- Settings: fees, contract duration and default room prices; stored as overrides on top of defaults.
- Event log: every change is recorded, view with 'stl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := app.LoadEnv(workspace); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		appLog = logger.New(logger.Options{
			ServiceName: "stageline",
			Level:       viper.GetString("log-level"),
		})
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STAGELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("today", "", "override today's date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "force", "today", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func invoiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoice <project-id>",
		Short: "Show a project's invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view.Invoice)
				}
				printInvoice(view)
				return nil
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Inventory and pipeline KPIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"Items", d.Items},
					{"Units", d.Units},
					{"Units in use", d.UnitsInUse},
					{"Units available", d.UnitsAvailable},
					{"Over-allocated items", strings.Join(d.OverAllocatedItems, ", ")},
				})
				states := make([]string, 0, len(d.Projects))
				for s := range d.Projects {
					states = append(states, string(s))
				}
				sort.Strings(states)
				for _, s := range states {
					tw.AppendRow(table.Row{"Projects " + s, d.Projects[domain.StagingState(s)]})
				}
				tw.AppendRow(table.Row{"Pipeline revenue", d.PipelineRevenue.StringFixed(2)})
				tw.Render()
				return nil
			})
		},
	}
}

func settingsCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "settings",
		Short: "Show and change settings",
		Long:  "Settings are deliveryFee, pickupFee, contractDuration (days) and room.<Room Label> prices. Stored values override the defaults.",
	}
	st.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Settings(ctx)
				if err != nil {
					return err
				}
				return printSettings(s)
			})
		},
	})
	st.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetSetting(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSettings(s)
			})
		},
	})
	st.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Merge settings from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ImportSettings(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSettings(s)
			})
		},
	})
	st.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Drop every stored override",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ResetSettings(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSettings(s)
			})
		},
	})
	return st
}

func printSettings(s config.Settings) error {
	if viper.GetBool("json") {
		return printJSON(s.Flatten())
	}
	flat := s.Flatten()
	tw := newTable()
	tw.AppendHeader(table.Row{"Key", "Value"})
	for _, k := range s.Keys() {
		tw.AppendRow(table.Row{k, flat[k]})
	}
	tw.Render()
	return nil
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var cursor string
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListEvents(ctx, n, cursor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range page.Items {
					tw.AppendRow(table.Row{evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				if page.NextCursor != "" {
					fmt.Printf("next cursor: %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind (item, project, settings)")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the API. With STAGELINE_JWT_SECRET set every route but /health needs an HS256 bearer token (see 'stl token').",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()
			authCfg := server.AuthConfig{
				JWTSecret:      viper.GetString("jwt-secret"),
				DefaultActorID: viper.GetString("actor-id"),
				Logger:         appLog,
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: appLog})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			if authCfg.JWTSecret == "" {
				appLog.Warn(cmd.Context(), "no JWT secret configured; API is open")
			}
			fmt.Printf("Serving Stageline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with STAGELINE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			token, err := server.IssueToken(viper.GetString("jwt-secret"), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	ws, err := app.Open(ctx, viper.GetString("workspace"), appLog)
	if err != nil {
		return nil, err
	}
	if err := ws.PinToday(viper.GetString("today")); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	ctx = appLog.WithActorID(ctx, viper.GetString("actor-id"))
	return fn(ctx, ws.Engine)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
