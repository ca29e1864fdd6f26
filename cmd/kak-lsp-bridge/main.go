// kak-lsp-bridge is a long-lived broker process that sits between a
// Kakoune session and one or more language servers: it reads editor
// requests off a pair of named pipes, routes them to the right server
// instance per buffer and project root, and relays results back.
//
// Flags and daemonization are intentionally minimal: starting and
// supervising the process (systemd unit, a Kakoune hook, a shell wrapper)
// is left to whatever invokes this binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rockerboo/kak-lsp-bridge/internal/config"
	"github.com/rockerboo/kak-lsp-bridge/internal/editorconn"
	"github.com/rockerboo/kak-lsp-bridge/internal/logging"
	"github.com/rockerboo/kak-lsp-bridge/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kak-lsp-bridge:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to the TOML configuration file")
		ctrlFIFO   = flag.String("control-fifo", "", "path to the control FIFO (required)")
		bufFIFO    = flag.String("buffer-fifo", "", "path to the buffer FIFO (required)")
		logPath    = flag.String("log-file", "", "path to the log file (stderr if empty)")
		logLevel   = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	if *ctrlFIFO == "" || *bufFIFO == "" {
		return fmt.Errorf("-control-fifo and -buffer-fifo are required")
	}

	cfgFile, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	effectiveLogPath := *logPath
	if effectiveLogPath == "" {
		effectiveLogPath = cfgFile.Global.LogPath
	}
	effectiveLogLevel := *logLevel
	if cfgFile.Global.LogLevel != "" && *logLevel == "info" {
		effectiveLogLevel = cfgFile.Global.LogLevel
	}
	if os.Getenv("KAK_LSP_DEBUG") != "" {
		effectiveLogLevel = "debug"
	}

	if err := logging.Init(logging.Config{
		LogPath:     effectiveLogPath,
		LogLevel:    effectiveLogLevel,
		MaxLogFiles: cfgFile.Global.MaxLogFiles,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close()

	channel, err := editorconn.Open(*ctrlFIFO, *bufFIFO)
	if err != nil {
		return fmt.Errorf("open editor channel: %w", err)
	}
	defer channel.Close()

	sess, err := session.New(cfgFile, channel, effectiveLogPath)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	go channel.Run()

	return sess.Run(ctx)
}

// loadConfig tries the explicit path first, then the usual XDG config
// locations, returning an empty (default-valued) config if none exist —
// a broker with no configured language servers still starts, it just has
// nothing to route to until the editor's lsp_servers blob supplies one.
func loadConfig(explicit string) (*config.File, error) {
	candidates := []string{explicit}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "kak-lsp-bridge", "config.toml"),
		)
	}
	candidates = append(candidates, "/etc/kak-lsp-bridge/config.toml")

	primary := candidates[0]
	if primary == "" && len(candidates) > 1 {
		primary = candidates[1]
		candidates = candidates[1:]
	}
	if primary == "" {
		return &config.File{LanguageServers: map[string]config.ServerConfig{}}, nil
	}

	cfg, err := config.LoadWithFallback(primary, candidates[1:]...)
	if err != nil {
		return &config.File{LanguageServers: map[string]config.ServerConfig{}}, nil
	}
	return cfg, nil
}
