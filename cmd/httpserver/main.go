package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinyhttpd/internal/filestore"
	"tinyhttpd/internal/router"
	"tinyhttpd/internal/server"
)

func main() {
	var (
		directory   = flag.String("directory", ".", "Directory to read and write /files/ from")
		addr        = flag.String("addr", server.DefaultAddr, "Address to listen on")
		maxConns    = flag.Int("max-conns", server.DefaultMaxConns, "Maximum connections served at once")
		readTimeout = flag.Duration("read-timeout", 30*time.Second, "Per-connection deadline, 0 to disable")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := setupLogger(*logLevel)
	slog.SetDefault(logger)

	// A missing directory is not fatal: file routes answer 404/500 until it exists.
	if err := checkDirectory(*directory); err != nil {
		logger.Warn("file directory is not usable yet", "directory", *directory, "error", err)
	}

	rt := router.New(filestore.New(*directory), logger)
	srv, err := server.Serve(server.Config{
		Addr:        *addr,
		MaxConns:    *maxConns,
		ReadTimeout: *readTimeout,
		Logger:      logger,
	}, rt.Handle)
	if err != nil {
		logger.Error("error starting server", "error", err)
		os.Exit(1)
	}
	logger.Info("server started", "addr", srv.Addr().String(), "directory", *directory)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := srv.Close(); err != nil {
		logger.Error("error stopping server", "error", err)
	}
	logger.Info("server gracefully stopped")
}

func checkDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
