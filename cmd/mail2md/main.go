package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/tracyhatemice/mail2md/internal/archiver"
	"github.com/tracyhatemice/mail2md/internal/config"
	"github.com/tracyhatemice/mail2md/internal/document"
	"github.com/tracyhatemice/mail2md/internal/markdown"
	"github.com/tracyhatemice/mail2md/internal/message"
	"github.com/tracyhatemice/mail2md/internal/receiver"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "dotenv file with credentials (optional)")
	emlPath := flag.String("eml", "", "convert a stored .eml file instead of reading the mailbox")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	if *emlPath != "" {
		doc, err := convertFile(afero.NewOsFs(), cfg, *emlPath, logger)
		if err != nil {
			logger.Error("convert failed", "file", *emlPath, "error", err)
			os.Exit(1)
		}
		logger.Info("saved", "path", doc.Path, "attachments", len(doc.Attachments))
		return
	}

	logger.Info("mail2md starting",
		"protocol", cfg.Protocol,
		"host", cfg.Host,
		"save_path", cfg.SavePath,
		"interval", cfg.CheckInterval(),
	)

	recv, err := newReceiver(cfg, logger)
	if err != nil {
		logger.Error("failed to create receiver", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	arch := archiver.New(*cfg, recv, afero.NewOsFs(), logger)

	done := make(chan error, 1)
	go func() { done <- arch.Run(ctx) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info("shutting down, waiting for current message to finish...")

		// Force exit on second signal.
		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			logger.Warn("forced shutdown")
			os.Exit(1)
		}()

		err = <-done
	}

	if err != nil {
		logger.Error("mail2md failed", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("mail2md stopped")
}

// convertFile writes the document for one stored message into cfg.SavePath.
func convertFile(fs afero.Fs, cfg *config.Config, path string, logger *slog.Logger) (*document.Document, error) {
	msg, err := message.ParseFile(fs, path)
	if err != nil {
		return nil, err
	}
	for _, perr := range msg.PartErrors {
		logger.Warn("message partially decoded", "file", path, "error", perr)
	}
	w := document.New(fs, cfg.SavePath, markdown.Converter{Flatten: cfg.FlattenHTML}, logger)
	return w.Write(msg)
}

func newReceiver(cfg *config.Config, logger *slog.Logger) (receiver.Receiver, error) {
	switch cfg.Protocol {
	case "pop3":
		return receiver.NewPOP3(
			cfg.Host, cfg.Port,
			cfg.Username, cfg.Password,
			cfg.UseTLS, logger,
		), nil
	case "imap":
		return receiver.NewIMAP(
			cfg.Host, cfg.Port,
			cfg.Username, cfg.Password,
			cfg.UseTLS, cfg.Folder, cfg.SearchCriteria, logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
