package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jayceecory-tech/ai-qingjia/internal/config"
	"github.com/jayceecory-tech/ai-qingjia/internal/server"
	"github.com/jayceecory-tech/ai-qingjia/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service (and the Telegram bot when configured)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func pidPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "qingjia.pid")
}

func writePIDFile(cfg *config.Config) (string, error) {
	path := pidPath(cfg)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidFile, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("qingjia started",
		"data_dir", cfg.DataDir,
		"listen", cfg.HTTP.Listen,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"llm_model", cfg.LLM.Model,
		"skill_count", a.executor.Registry().Len(),
		"skills", a.executor.Registry().Names(),
		"pid_file", pidFile,
	)

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.gateway)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
	} else {
		slog.Info("telegram adapter disabled (no token)")
	}

	srv := server.New(a.gateway, a.backend, server.Options{StaticDir: cfg.StaticDir})
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(ctx, cfg.HTTP.Listen)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				return fmt.Errorf("restart: %w", reexec(cancel, errc, pidFile))
			}
			slog.Info("shutting down", "signal", sig,
				"active_exchanges", a.gateway.Active(),
				"total_exchanges", a.gateway.Total(),
			)
			cancel()
			return <-errc
		}
	}
}

// reexec stops the server and replaces the process with a fresh copy of
// itself. It returns only on failure, with the server already stopped.
func reexec(cancel context.CancelFunc, errc <-chan error, pidFile string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("executable path: %w", err)
	}
	// Release the listen address before the new image binds it.
	cancel()
	if err := <-errc; err != nil {
		slog.Warn("http server stopped with error", "error", err)
	}
	os.Remove(pidFile)
	return syscall.Exec(execPath, os.Args, os.Environ())
}
