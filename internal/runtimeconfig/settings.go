package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"
)

const (
	ProjectFileName = "restoredit.yaml"

	DefaultRoot       = "/gscratch/krishna/akshan3/resto_pipeline"
	DefaultTrainFile  = "train.jsonl"
	DefaultTestFile   = "test.jsonl"
	DefaultMaskFile   = "dummy_mask.png"
	DefaultRepoID     = "akshan-main/restoredit-qwen-image-edit"
	DefaultHubURL     = "https://huggingface.co"
	DefaultRevision   = "main"
	DefaultMaxShardMB = 500
)

// Settings is the fully resolved configuration of one run.
type Settings struct {
	Root         string
	TrainFile    string
	TestFile     string
	MaskPath     string
	RepoID       string
	Private      bool
	HubURL       string
	Revision     string
	MaxShardSize int64
	Token        string
	ProjectFile  string
}

type projectFile struct {
	Root       string `yaml:"root"`
	Train      string `yaml:"train"`
	Test       string `yaml:"test"`
	Mask       string `yaml:"mask"`
	Repo       string `yaml:"repo"`
	Private    *bool  `yaml:"private"`
	HubURL     string `yaml:"hub_url"`
	Revision   string `yaml:"revision"`
	MaxShardMB int64  `yaml:"max_shard_mb"`
}

func FindProjectFile(cwd string) string {
	current := cwd
	for {
		candidate := filepath.Join(current, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return ""
}

func loadProjectFile(path string) (projectFile, error) {
	project := projectFile{}
	if path == "" {
		return project, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return project, fmt.Errorf("read %s: %w", ProjectFileName, err)
	}
	if err := yaml.Unmarshal(raw, &project); err != nil {
		return project, fmt.Errorf("invalid %s: %w", ProjectFileName, err)
	}
	return project, nil
}

// Resolve layers built-in defaults, the nearest restoredit.yaml above cwd,
// the user config values, and the environment, in increasing precedence.
func Resolve(cwd string, values map[string]string) (Settings, error) {
	projectPath := FindProjectFile(cwd)
	project, err := loadProjectFile(projectPath)
	if err != nil {
		return Settings{}, err
	}

	// A relative root from restoredit.yaml is relative to that file.
	root, rootBase := ResolveString("RESTOREDIT_ROOT", values), cwd
	if root == "" && strings.TrimSpace(project.Root) != "" {
		root, rootBase = project.Root, filepath.Dir(projectPath)
	}
	if root == "" {
		root = DefaultRoot
	}
	train := pick(ResolveString("RESTOREDIT_TRAIN", values), project.Train, DefaultTrainFile)
	test := pick(ResolveString("RESTOREDIT_TEST", values), project.Test, DefaultTestFile)
	mask := pick(ResolveString("RESTOREDIT_MASK", values), project.Mask, DefaultMaskFile)

	private := true
	if project.Private != nil {
		private = *project.Private
	}
	private = ResolveBool("RESTOREDIT_PRIVATE", values, private)

	maxShardMB := int64(DefaultMaxShardMB)
	if project.MaxShardMB > 0 {
		maxShardMB = project.MaxShardMB
	}
	if raw := ResolveString("RESTOREDIT_MAX_SHARD_MB", values); raw != "" {
		parsed, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || parsed <= 0 {
			return Settings{}, fmt.Errorf("RESTOREDIT_MAX_SHARD_MB must be a positive integer, got %q", raw)
		}
		maxShardMB = parsed
	}

	expandedRoot, err := ExpandPath(root)
	if err != nil {
		return Settings{}, fmt.Errorf("expand root: %w", err)
	}
	if !filepath.IsAbs(expandedRoot) {
		expandedRoot = filepath.Join(rootBase, expandedRoot)
	}

	settings := Settings{
		Root:         filepath.Clean(expandedRoot),
		RepoID:       pick(ResolveString("RESTOREDIT_REPO", values), project.Repo, DefaultRepoID),
		Private:      private,
		HubURL:       pick(ResolveString("RESTOREDIT_HUB_URL", values), project.HubURL, DefaultHubURL),
		Revision:     pick(ResolveString("RESTOREDIT_REVISION", values), project.Revision, DefaultRevision),
		MaxShardSize: maxShardMB * 1000 * 1000,
		Token:        pick(ResolveString("HF_TOKEN", values), ResolveString("HUGGING_FACE_HUB_TOKEN", values), ""),
		ProjectFile:  projectPath,
	}
	for _, entry := range []struct {
		target *string
		value  string
		name   string
	}{
		{target: &settings.TrainFile, value: train, name: "train"},
		{target: &settings.TestFile, value: test, name: "test"},
		{target: &settings.MaskPath, value: mask, name: "mask"},
	} {
		resolved, expandErr := underRoot(settings.Root, entry.value)
		if expandErr != nil {
			return Settings{}, fmt.Errorf("expand %s path: %w", entry.name, expandErr)
		}
		*entry.target = resolved
	}

	if strings.Count(strings.Trim(settings.RepoID, "/"), "/") > 1 {
		return Settings{}, fmt.Errorf("invalid repo id %q", settings.RepoID)
	}
	return settings, nil
}

// ExpandPath expands $VAR, ${VAR} and a leading ~ the way a shell would
// inside double quotes.
func ExpandPath(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory failed: %w", err)
		}
		trimmed = homeDir + strings.TrimPrefix(trimmed, "~")
	}
	expanded, err := shell.Expand(trimmed, nil)
	if err != nil {
		return "", err
	}
	return expanded, nil
}

func underRoot(root string, value string) (string, error) {
	expanded, err := ExpandPath(value)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(root, expanded), nil
}

func pick(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
