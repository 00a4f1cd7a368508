package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/BegaDeveloper/restoredit/internal/dataset"
	"github.com/BegaDeveloper/restoredit/internal/history"
	"github.com/BegaDeveloper/restoredit/internal/mask"
	"github.com/BegaDeveloper/restoredit/internal/publish"
	"github.com/BegaDeveloper/restoredit/internal/runtimeconfig"
)

const (
	SplitTrain = "train"
	SplitTest  = "test"

	ModePush   = "push"
	ModeExport = "export"
)

// Report carries per-split counts for progress output and run history.
type Report struct {
	Splits map[string]history.SplitCount
}

// Build provisions the mask and turns both input files into a typed dataset.
func Build(settings runtimeconfig.Settings, progress io.Writer) (*dataset.Dict, Report, error) {
	if progress == nil {
		progress = io.Discard
	}
	if maskError := mask.Ensure(settings.MaskPath); maskError != nil {
		return nil, Report{}, maskError
	}

	report := Report{Splits: map[string]history.SplitCount{}}
	dict := dataset.NewDict()
	for _, input := range []struct {
		name string
		path string
	}{
		{name: SplitTrain, path: settings.TrainFile},
		{name: SplitTest, path: settings.TestFile},
	} {
		loaded, loadError := dataset.LoadJSONL(input.path)
		if loadError != nil {
			return nil, Report{}, loadError
		}
		split := dataset.BuildSplit(loaded.Rows, settings.Root, settings.MaskPath)
		table, castError := dataset.Cast(split, dataset.RestoreFeatures())
		if castError != nil {
			return nil, Report{}, fmt.Errorf("cast %s split: %w", input.name, castError)
		}
		if addError := dict.Add(input.name, table); addError != nil {
			return nil, Report{}, addError
		}
		report.Splits[input.name] = history.SplitCount{
			Examples:  split.Len(),
			Skipped:   split.Skipped,
			Malformed: loaded.Malformed,
		}
		fmt.Fprintf(progress, "%s: kept=%d skipped=%d malformed=%d\n", input.name, split.Len(), split.Skipped, loaded.Malformed)
	}
	return dict, report, nil
}

func publishOptions(settings runtimeconfig.Settings) publish.Options {
	return publish.Options{
		RepoID:       settings.RepoID,
		Revision:     settings.Revision,
		Private:      settings.Private,
		MaxShardSize: settings.MaxShardSize,
	}
}

// Push builds the dataset and publishes it. The run is recorded in store
// when one is given, whether it succeeds or not.
func Push(ctx context.Context, settings runtimeconfig.Settings, client publish.Hub, store *history.Store, progress io.Writer) (publish.Outcome, error) {
	run := startRun(store, settings, ModePush)

	dict, report, buildError := Build(settings, progress)
	if buildError != nil {
		return publish.Outcome{}, finishRun(store, run, report, buildError)
	}
	outcome, pushError := publish.Push(ctx, client, dict, publishOptions(settings), progress)
	if pushError != nil {
		return publish.Outcome{}, finishRun(store, run, report, pushError)
	}
	countShards(report, outcome.Staged)
	run.CommitURL = outcome.CommitURL
	run.CommitOID = outcome.CommitOID
	return outcome, finishRun(store, run, report, nil)
}

// Export builds the dataset and writes the repository layout to dir.
func Export(settings runtimeconfig.Settings, dir string, store *history.Store, progress io.Writer) (publish.Staged, error) {
	run := startRun(store, settings, ModeExport)

	dict, report, buildError := Build(settings, progress)
	if buildError != nil {
		return publish.Staged{}, finishRun(store, run, report, buildError)
	}
	staged, exportError := publish.Export(dict, dir, publishOptions(settings))
	if exportError != nil {
		return publish.Staged{}, finishRun(store, run, report, exportError)
	}
	countShards(report, staged)
	return staged, finishRun(store, run, report, nil)
}

func countShards(report Report, staged publish.Staged) {
	for _, split := range staged.Splits {
		count := report.Splits[split.Name]
		count.Shards = len(split.Shards)
		report.Splits[split.Name] = count
	}
}

func startRun(store *history.Store, settings runtimeconfig.Settings, mode string) history.Run {
	startedAt := time.Now().UTC()
	run := history.Run{
		ID:        history.NewRunID(startedAt),
		RepoID:    settings.RepoID,
		Mode:      mode,
		Status:    history.StatusRunning,
		StartedAt: startedAt,
	}
	if store != nil {
		_ = store.Save(run)
	}
	return run
}

// finishRun records the outcome and returns runError unchanged. History is
// best effort and never fails a run.
func finishRun(store *history.Store, run history.Run, report Report, runError error) error {
	if store == nil {
		return runError
	}
	run.Splits = report.Splits
	run.FinishedAt = time.Now().UTC()
	run.Status = history.StatusSucceeded
	if runError != nil {
		run.Status = history.StatusFailed
		run.Error = runError.Error()
	}
	_ = store.Save(run)
	return runError
}
