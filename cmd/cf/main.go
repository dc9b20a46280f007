package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"caseflow/internal/app"
	"caseflow/internal/config"
	"caseflow/internal/domain"
	"caseflow/internal/engine"
	"caseflow/internal/server"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "cf",
	Short: "caseflow structural editor",
	Long: `caseflow edits rule-flow decision engines through their structure instead of their text.
- App: one decision engine source file under the runtime directory.
- Package: a named group of rules, optionally gated by a condition, called from the ruleflow.
- Rule: a function body that reads the input and mutates the output; every rule records itself in output details.
- Edits parse the file, change the structure, regenerate the source and re-parse it before writing.
- Every edit lands in the audit log, view it with 'cf log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zapcore.WarnLevel
		if cmd.Name() == "serve" {
			level = zapcore.InfoLevel
		}
		if viper.GetBool("debug") {
			level = zapcore.DebugLevel
		}
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(level)
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
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
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CASEFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./"+config.FileName+" when present)")
	rootCmd.PersistentFlags().String("runtime-dir", "", "runtime directory (overrides config)")
	rootCmd.PersistentFlags().String("dialect", "", "source dialect: python or go (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the audit log")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	for _, name := range []string{"config", "runtime-dir", "dialect", "json", "actor-id", "debug"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(packageCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(".")
	}
	if err != nil {
		return nil, err
	}
	if dir := viper.GetString("runtime-dir"); dir != "" {
		cfg.RuntimeDir = dir
	}
	if d := viper.GetString("dialect"); d != "" {
		cfg.Dialect = d
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect or create caseflow.yml"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret != "" {
				cfg.Server.JWTSecret = "***"
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	})
	var dialectName string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter " + config.FileName,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(".")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(dialectName)), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&dialectName, "source-dialect", "python", "dialect written into the config")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func appCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "app", Short: "Manage apps"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApps(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Class", "Packages", "Rules", "Error"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.ClassName, a.Packages, a.Rules, a.Error})
				}
				tw.Render()
				return nil
			})
		},
	})

	var className string
	create := &cobra.Command{
		Use:   "create <app-id>",
		Short: "Create an empty decision engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printResult(e.CreateApp(ctx, engine.AppCreateOptions{AppID: args[0], ClassName: className, ActorID: actorID()}))
			})
		},
	}
	create.Flags().StringVar(&className, "class", "", "engine class name")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <app-id>",
		Short: "Show packages and rules in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetStructure(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				printStructure(s)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "source <app-id>",
		Short: "Print the engine source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				src, err := e.GetSource(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(src)
				return err
			})
		},
	})
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a source file survives parse and regeneration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			switch filepath.Ext(args[0]) {
			case ".go":
				cfg.Dialect = "go"
			case ".py":
				cfg.Dialect = "python"
			}
			d, err := app.DialectFor(cfg)
			if err != nil {
				return err
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			v, err := engine.Engine{Dialect: d}.ValidateSource(src)
			if err != nil {
				var pe *domain.ParseError
				if errors.As(err, &pe) {
					return fmt.Errorf("%s:%d:%d: %s", args[0], pe.Line, pe.Column, pe.Message)
				}
				return err
			}
			if viper.GetBool("json") {
				return printJSON(v)
			}
			printStructure(v.Structure)
			if !v.RoundTrip {
				fmt.Println(v.Diff)
				return fmt.Errorf("%s does not survive regeneration", args[0])
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "Every structural edit, applied or not, with its actor and file digests.",
	}
	var n int
	var appID, op string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.History(ctx, engine.HistoryOptions{AppID: appID, Op: op, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "App", "Op", "Target", "Actor", "Status", "Message"})
				for _, ed := range items {
					tw.AppendRow(table.Row{ed.ID, ed.TS, ed.AppID, ed.Op, ed.Target, ed.ActorID, ed.Status, ed.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&n, "limit", "n", 20, "number of edits")
	tail.Flags().StringVar(&appID, "app", "", "only edits of this app")
	tail.Flags().StringVar(&op, "op", "", "only edits of this operation")
	cmd.AddCommand(tail)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cfg := rt.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Log: logger},
					Log:      logger,
				})
				if err != nil {
					return err
				}
				if cfg.Server.JWTSecret == "" {
					logger.Warn("serving without authentication; set server.jwt_secret or CASEFLOW_JWT_SECRET")
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(sctx)
				})
				if len(cfg.Webhooks) > 0 {
					d := server.NewDispatcher(rt.Engine.Repo, cfg.Webhooks, logger)
					g.Go(func() error { return d.Run(gctx) })
				}
				fmt.Printf("Serving caseflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret enabling bearer auth")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func printResult(res engine.Result, err error) error {
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(res)
	}
	fmt.Println(res.Message)
	return nil
}

func printStructure(s *domain.Structure) {
	fmt.Printf("Class: %s\n", s.ClassName)
	if !s.HasRuleflow {
		fmt.Println("No ruleflow function")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Package", "Condition", "Rule", "Rule condition"})
	for _, p := range s.Packages {
		for i, r := range p.Rules {
			row := table.Row{"", "", "", r.Name, conditionText(r.Condition)}
			if i == 0 {
				row[0], row[1], row[2] = p.ExecutionOrder, p.Name, conditionText(p.Condition)
			}
			tw.AppendRow(row)
		}
		if len(p.Rules) == 0 {
			tw.AppendRow(table.Row{p.ExecutionOrder, p.Name, conditionText(p.Condition), "", ""})
		}
	}
	tw.Render()
}

func conditionText(c *string) string {
	if c == nil {
		return "always"
	}
	return *c
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
