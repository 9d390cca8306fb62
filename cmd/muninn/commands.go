package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravnltd/muninn/internal/collect"
	"github.com/ravnltd/muninn/internal/config"
	"github.com/ravnltd/muninn/internal/fragility"
	"github.com/ravnltd/muninn/internal/httpapi"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/router"
	"github.com/ravnltd/muninn/internal/store"
	"github.com/ravnltd/muninn/internal/tools"
	"github.com/ravnltd/muninn/internal/validate"
	"github.com/ravnltd/muninn/internal/worker"
)

const version = "0.4.0"

var (
	primaryAddr  string
	scanMax      int
	queryIntent  string
	watchProject bool
)

func init() {
	primaryCmd.Flags().StringVar(&primaryAddr, "addr", "127.0.0.1:8787", "listen address")
	scanCmd.Flags().IntVar(&scanMax, "max-files", fragility.DefaultMaxFiles, "maximum files per pass")
	queryCmd.Flags().StringVar(&queryIntent, "intent", router.IntentRead, "routing intent")
	serveCmd.Flags().BoolVar(&watchProject, "watch", true, "watch the project for file edits")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool protocol over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		adapter, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer adapter.Close()

		s := store.New(adapter)
		service, err := tools.NewService(s, cfg.ProjectRoot)
		if err != nil {
			return err
		}
		if cfg.Mode == config.ModeLocal {
			globalAdapter := store.NewLocalAdapter(cfg.GlobalDatabasePath(), cfg.MigrationLogPath())
			if err := globalAdapter.Init(); err != nil {
				logging.Suppress("serve.global", err)
			} else {
				defer globalAdapter.Close()
				if err := service.AttachGlobal(store.New(globalAdapter)); err != nil {
					logging.Suppress("serve.global", err)
				}
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Background jobs ride alongside the stdio server.
		w := worker.New(s, service.Project().ID)
		go func() {
			if err := w.Run(ctx); err != nil {
				logging.Suppress("serve.worker", err)
			}
		}()
		if watchProject {
			watcher := worker.NewWatcher(s, service.Project().ID, cfg.ProjectRoot)
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					logging.Suppress("serve.watcher", err)
				}
			}()
		}

		console.Infof("muninn %s serving tool protocol for %s", version, cfg.ProjectRoot)
		return tools.ServeStdio(tools.NewMCPServer(service, version))
	},
}

var primaryCmd = &cobra.Command{
	Use:   "primary",
	Short: "Serve the shared-mode HTTP primary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		adapter := store.NewLocalAdapter(cfg.DatabasePath(), cfg.MigrationLogPath())
		if err := adapter.Init(); err != nil {
			return err
		}
		defer adapter.Close()

		if cfg.APIToken == "" && !cfg.LocalhostBypass {
			return fmt.Errorf("primary needs MUNINN_API_TOKEN or the localhost bypass enabled")
		}

		srv := &http.Server{
			Addr:    primaryAddr,
			Handler: httpapi.NewServer(adapter, cfg).Handler(),
		}
		console.Infof("muninn primary listening on %s", primaryAddr)
		return srv.ListenAndServe()
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one fragility pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		adapter, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer adapter.Close()

		s := store.New(adapter)
		project, err := s.EnsureProject(cfg.ProjectRoot)
		if err != nil {
			return err
		}
		res, err := fragility.NewScorer(s).ComputeProjectFragility(cmd.Context(), project.ID, scanMax)
		if err != nil {
			return err
		}
		console.Infof("fragility scan: computed=%d updated=%d", res.Computed, res.Updated)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the store integrity report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		adapter := store.NewLocalAdapter(cfg.DatabasePath(), cfg.MigrationLogPath())
		if err := adapter.Init(); err != nil {
			return err
		}
		defer adapter.Close()

		report, err := adapter.CheckIntegrity()
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		if !report.Ok {
			return fmt.Errorf("%w: %d problems", store.ErrIntegrity, len(report.Problems()))
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a one-shot context query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := validate.ContextRequest{Intent: queryIntent, Query: args[0]}
		if err := validate.Struct(&req); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		adapter, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer adapter.Close()

		s := store.New(adapter)
		project, err := s.EnsureProject(cfg.ProjectRoot)
		if err != nil {
			return err
		}
		result, err := router.New(s).RouteContext(project, collect.Request{
			Intent: req.Intent,
			Query:  req.Query,
		})
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show suppression counters and budget recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		adapter, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer adapter.Close()

		s := store.New(adapter)
		project, err := s.EnsureProject(cfg.ProjectRoot)
		if err != nil {
			return err
		}

		recs, err := s.BudgetRecommendations(project.ID)
		if err != nil {
			return err
		}
		status := map[string]any{
			"project":                project.Path,
			"mode":                   cfg.Mode,
			"budget_recommendations": recs,
			"suppressed_errors":      logging.SuppressedCounts(),
		}
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}
