package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BegaDeveloper/restoredit/internal/dataset"
	"github.com/BegaDeveloper/restoredit/internal/hub"
)

const DefaultCommitMessage = "Upload dataset"

// Hub is the part of hub.Client the publisher needs.
type Hub interface {
	CreateRepo(ctx context.Context, repoID string, private bool) error
	ListFiles(ctx context.Context, repoID string, revision string, directory string) ([]hub.TreeEntry, error)
	Preupload(ctx context.Context, repoID string, revision string, uploads []hub.Upload) (map[string]string, error)
	UploadLFS(ctx context.Context, repoID string, upload hub.Upload) error
	Commit(ctx context.Context, repoID string, revision string, commit hub.Commit) (hub.CommitInfo, error)
}

type Options struct {
	RepoID        string
	Revision      string
	Private       bool
	MaxShardSize  int64
	CommitMessage string
}

// Staged is a dataset laid out on disk the way it is stored in the repo.
type Staged struct {
	Dir      string
	Splits   []dataset.SplitStats
	CardPath string
}

type StagedFile struct {
	RepoPath  string
	LocalPath string
}

func (staged Staged) Files() []StagedFile {
	files := make([]StagedFile, 0, 1)
	for _, split := range staged.Splits {
		for _, shard := range split.Shards {
			files = append(files, StagedFile{RepoPath: shard.RepoPath, LocalPath: shard.LocalPath})
		}
	}
	return append(files, StagedFile{RepoPath: dataset.CardFileName, LocalPath: staged.CardPath})
}

type Outcome struct {
	Staged    Staged
	CommitURL string
	CommitOID string
	Uploaded  int
	Deleted   []string
}

// Stage writes every split as parquet shards plus the dataset card into dir.
func Stage(dict *dataset.Dict, dir string, options Options) (Staged, error) {
	staged := Staged{Dir: dir}
	features := dataset.Features(nil)
	for _, name := range dict.Names() {
		table, _ := dict.Table(name)
		if features == nil {
			features = table.Features
		}
		stats, writeError := dataset.WriteShards(table, name, dir, options.MaxShardSize)
		if writeError != nil {
			return Staged{}, fmt.Errorf("write split %s: %w", name, writeError)
		}
		staged.Splits = append(staged.Splits, stats)
	}
	if features == nil {
		features = dataset.RestoreFeatures()
	}

	card, cardError := dataset.BuildCard(options.RepoID, features, staged.Splits)
	if cardError != nil {
		return Staged{}, cardError
	}
	staged.CardPath = filepath.Join(dir, dataset.CardFileName)
	if writeError := os.WriteFile(staged.CardPath, card, 0o644); writeError != nil {
		return Staged{}, fmt.Errorf("write dataset card: %w", writeError)
	}
	return staged, nil
}

// Export stages the dataset into dir without touching the network.
func Export(dict *dataset.Dict, dir string, options Options) (Staged, error) {
	if makeError := os.MkdirAll(dir, 0o755); makeError != nil {
		return Staged{}, fmt.Errorf("mkdir: %w", makeError)
	}
	return Stage(dict, dir, options)
}

// Push stages the dataset in a temporary directory and publishes it as a
// single commit. Shards from earlier pushes of the same splits that are not
// part of this upload are deleted in that commit.
func Push(ctx context.Context, client Hub, dict *dataset.Dict, options Options, progress io.Writer) (Outcome, error) {
	if progress == nil {
		progress = io.Discard
	}
	staging, tempError := os.MkdirTemp("", "restoredit-*")
	if tempError != nil {
		return Outcome{}, fmt.Errorf("create staging directory: %w", tempError)
	}
	defer os.RemoveAll(staging)

	staged, stageError := Stage(dict, staging, options)
	if stageError != nil {
		return Outcome{}, stageError
	}

	if createError := client.CreateRepo(ctx, options.RepoID, options.Private); createError != nil {
		return Outcome{}, createError
	}

	uploads := make([]hub.Upload, 0, len(staged.Files()))
	for _, file := range staged.Files() {
		upload, prepareError := hub.PrepareUpload(file.RepoPath, file.LocalPath)
		if prepareError != nil {
			return Outcome{}, prepareError
		}
		uploads = append(uploads, upload)
	}
	modes, preuploadError := client.Preupload(ctx, options.RepoID, options.Revision, uploads)
	if preuploadError != nil {
		return Outcome{}, preuploadError
	}

	commit := hub.Commit{Summary: options.CommitMessage}
	if strings.TrimSpace(commit.Summary) == "" {
		commit.Summary = DefaultCommitMessage
	}
	outcome := Outcome{Staged: staged}
	for _, upload := range uploads {
		if !upload.IsLFS(modes) {
			commit.Regular = append(commit.Regular, upload)
			continue
		}
		fmt.Fprintf(progress, "uploading %s (%d bytes)\n", upload.RepoPath, upload.Size)
		if uploadError := client.UploadLFS(ctx, options.RepoID, upload); uploadError != nil {
			return Outcome{}, uploadError
		}
		commit.LFS = append(commit.LFS, upload)
		outcome.Uploaded++
	}

	existing, listError := client.ListFiles(ctx, options.RepoID, options.Revision, dataset.DataDirectory)
	if listError != nil {
		return Outcome{}, listError
	}
	commit.Deleted = staleFiles(existing, dict.Names(), uploads)
	outcome.Deleted = commit.Deleted

	info, commitError := client.Commit(ctx, options.RepoID, options.Revision, commit)
	if commitError != nil {
		return Outcome{}, commitError
	}
	outcome.CommitURL = info.CommitURL
	outcome.CommitOID = info.CommitOID
	return outcome, nil
}

func staleFiles(existing []hub.TreeEntry, splits []string, uploads []hub.Upload) []string {
	current := map[string]bool{}
	for _, upload := range uploads {
		current[upload.RepoPath] = true
	}
	stale := make([]string, 0)
	for _, entry := range existing {
		if current[entry.Path] {
			continue
		}
		for _, split := range splits {
			if strings.HasPrefix(entry.Path, dataset.DataDirectory+"/"+split+"-") {
				stale = append(stale, entry.Path)
				break
			}
		}
	}
	sort.Strings(stale)
	return stale
}
