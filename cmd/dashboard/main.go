package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"agentdash/internal/app"
	"agentdash/internal/appinfo"
	"agentdash/internal/config"
	"agentdash/internal/tui"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "version" {
		fmt.Println(appinfo.Display())
		return
	}
	if err := run(osArgs()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func osArgs() []string {
	if len(os.Args) >= 2 && os.Args[1] == "dashboard" {
		return os.Args[2:]
	}
	return os.Args[1:]
}

func run(args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml (default: ~/.agentdash/config.yaml)")
	serverURL := fs.String("server", "", "agent server websocket URL (overrides config)")
	userID := fs.String("user", "", "user id for remote layout sync (overrides config)")
	uiMode := fs.String("ui", string(tui.ModeTUI), "ui mode: tui or plain")
	verbose := fs.Bool("verbose", false, "log wiring and stream events to stderr")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*serverURL) != "" {
		cfg.ServerURL = strings.TrimSpace(*serverURL)
	}
	if strings.TrimSpace(*userID) != "" {
		cfg.UserID = strings.TrimSpace(*userID)
	}

	logf := func(string, ...any) {}
	if *verbose {
		logger := log.New(os.Stderr, "", log.LstdFlags)
		logf = logger.Printf
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, app.Options{Config: cfg, Logf: logf})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	switch tui.Mode(strings.TrimSpace(*uiMode)) {
	case tui.ModePlain:
		return tui.RunPlain(ctx, os.Stdin, os.Stdout, tui.Options{App: a})
	case tui.ModeTUI, "":
		return tui.Run(ctx, os.Stdin, os.Stdout, tui.Options{App: a})
	default:
		return fmt.Errorf("unknown ui mode %q (want tui or plain)", *uiMode)
	}
}
