package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BegaDeveloper/restoredit/internal/history"
	"github.com/BegaDeveloper/restoredit/internal/hub"
	"github.com/BegaDeveloper/restoredit/internal/pipeline"
	"github.com/BegaDeveloper/restoredit/internal/runtimeconfig"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

const usage = "usage: restoredit [push] | export <dir> | doctor | history [limit] | login <token>"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, output io.Writer, errorOutput io.Writer) int {
	command := "push"
	if len(args) > 0 {
		command = strings.TrimSpace(args[0])
		args = args[1:]
	}

	var commandError error
	switch command {
	case "push":
		if len(args) != 0 {
			fmt.Fprintln(errorOutput, usage)
			return exitFailure
		}
		commandError = runPush(output, errorOutput)
	case "export":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			fmt.Fprintln(errorOutput, usage)
			return exitFailure
		}
		commandError = runExport(args[0], output, errorOutput)
	case "doctor":
		commandError = runDoctor(output, errorOutput)
	case "history":
		if len(args) > 1 {
			fmt.Fprintln(errorOutput, usage)
			return exitFailure
		}
		commandError = runHistory(args, output)
	case "login":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			fmt.Fprintln(errorOutput, usage)
			return exitFailure
		}
		commandError = runLogin(args[0], output)
	case "-h", "--help", "help":
		fmt.Fprintln(output, usage)
		return exitSuccess
	default:
		fmt.Fprintln(errorOutput, usage)
		return exitFailure
	}
	if commandError != nil {
		fmt.Fprintf(errorOutput, "restoredit: %v\n", commandError)
		return exitFailure
	}
	return exitSuccess
}

func loadSettings() (runtimeconfig.Settings, error) {
	config, err := runtimeconfig.Load("")
	if err != nil {
		return runtimeconfig.Settings{}, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return runtimeconfig.Settings{}, fmt.Errorf("resolve working directory failed: %w", err)
	}
	return runtimeconfig.Resolve(cwd, config.Values)
}

// openHistory returns nil when the run database is unavailable; history is
// not worth failing an upload over.
func openHistory(errorOutput io.Writer) *history.Store {
	store, err := history.Open(history.DefaultPath())
	if err != nil {
		fmt.Fprintf(errorOutput, "warning: run history disabled: %v\n", err)
		return nil
	}
	return store
}

func runPush(output io.Writer, errorOutput io.Writer) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if settings.Token == "" {
		return fmt.Errorf("no hub token: set HF_TOKEN or run restoredit login <token>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openHistory(errorOutput)
	defer store.Close()

	client := hub.NewClient(settings.HubURL, settings.Token)
	if _, pushError := pipeline.Push(ctx, settings, client, store, errorOutput); pushError != nil {
		return pushError
	}
	fmt.Fprintf(output, "uploaded dataset to: %s\n", settings.RepoID)
	return nil
}

func runExport(dir string, output io.Writer, errorOutput io.Writer) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store := openHistory(errorOutput)
	defer store.Close()

	staged, exportError := pipeline.Export(settings, dir, store, errorOutput)
	if exportError != nil {
		return exportError
	}
	fmt.Fprintf(output, "exported dataset to: %s\n", staged.Dir)
	return nil
}

func runHistory(args []string, output io.Writer) error {
	limit := 0
	if len(args) == 1 {
		parsed, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || parsed <= 0 {
			return fmt.Errorf("history limit must be a positive integer, got %q", args[0])
		}
		limit = parsed
	}
	store, err := history.Open(history.DefaultPath())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(output, "no runs recorded")
		return nil
	}
	for _, recorded := range runs {
		fmt.Fprintf(output, "%s  %-9s  %-6s  %s  %s\n",
			recorded.StartedAt.Local().Format(time.DateTime),
			recorded.Status,
			recorded.Mode,
			recorded.RepoID,
			describeRun(recorded),
		)
	}
	return nil
}

func describeRun(recorded history.Run) string {
	if recorded.Status == history.StatusFailed {
		return recorded.Error
	}
	parts := make([]string, 0, 3)
	for _, name := range []string{pipeline.SplitTrain, pipeline.SplitTest} {
		count, ok := recorded.Splits[name]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, count.Examples))
	}
	if recorded.CommitOID != "" {
		parts = append(parts, "commit="+recorded.CommitOID)
	}
	return strings.Join(parts, " ")
}

func runLogin(token string, output io.Writer) error {
	config, err := runtimeconfig.Load("")
	if err != nil {
		return err
	}
	config.Values["HF_TOKEN"] = strings.TrimSpace(token)
	if saveError := runtimeconfig.Save(config); saveError != nil {
		return saveError
	}
	fmt.Fprintf(output, "saved hub token to %s\n", config.Path)
	return nil
}
