// Command qps uploads a question paper to the solver service and prints an
// answer for every extracted question.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/qps-ai/client/internal/clipboard"
	"github.com/qps-ai/client/internal/config"
	"github.com/qps-ai/client/internal/document"
	"github.com/qps-ai/client/internal/logging"
	"github.com/qps-ai/client/internal/models"
	"github.com/qps-ai/client/internal/session"
	"github.com/qps-ai/client/internal/solver"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		file       = flag.String("file", "", "document to upload (PDF or image)")
		configPath = flag.String("config", "qps.yaml", "path to the YAML config file")
		serviceURL = flag.String("service", "", "solver service URL, overrides the config")
		copyLast   = flag.Bool("copy", false, "copy the last answer to the clipboard")
		asJSON     = flag.Bool("json", false, "print the session as JSON")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: qps -file <document> [-service URL] [-copy] [-json]")
		os.Exit(2)
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *serviceURL != "" {
		cfg.Service.URL = *serviceURL
	}
	logging.InitWithWriter(os.Stderr, cfg.Advanced.LogLevel, cfg.Advanced.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *file, *copyLast, *asJSON, os.Stdout); err != nil {
		log.Error().Err(err).Msg("qps failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, path string, copyLast, asJSON bool, out io.Writer) error {
	maxUpload, err := cfg.MaxUploadBytes()
	if err != nil {
		return err
	}
	doc, err := document.Load(path, maxUpload)
	if err != nil {
		return err
	}

	client, err := solver.NewClient(cfg.SolverConfig(), solver.WithLogger(logging.Component("solver")))
	if err != nil {
		return err
	}

	notifier := clipboard.NewNotifier(clipboard.WithLogger(logging.Component("clipboard")))
	defer notifier.Cancel()

	ctrl := session.NewController(session.NewStore(), client,
		session.WithFeedback(notifier),
		session.WithLogger(logging.Component("session")),
	)
	defer ctrl.Close()

	if err := ctrl.Upload(ctx, doc); err != nil {
		return fmt.Errorf("%s: %s", doc.Name, solver.UserMessage(err, solver.UploadFailedMessage))
	}

	// One request per question, in order; a failed question does not stop
	// the rest.
	for i, p := range ctrl.Snapshot().Pairs {
		if !p.Solvable() || p.Question == "" {
			continue
		}
		if err := ctrl.Solve(ctx, i); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	snap := ctrl.Snapshot()
	if copyLast {
		copyLastAnswer(notifier, snap)
	}
	return printSession(out, snap, asJSON)
}

func copyLastAnswer(n *clipboard.Notifier, s models.Session) {
	for i := len(s.Pairs) - 1; i >= 0; i-- {
		if s.Pairs[i].Status == models.PairStatusSolved {
			n.Notify(i, s.Pairs[i].Answer)
			return
		}
	}
}

func printSession(out io.Writer, s models.Session, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintln(out, s.StatusMessage)
	for i, p := range s.Pairs {
		fmt.Fprintf(out, "\nQ%d: %s\nA%d: %s\n", i+1, p.Question, i+1, p.DisplayText())
	}
	return nil
}
