package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BegaDeveloper/restoredit/internal/hub"
	"github.com/BegaDeveloper/restoredit/internal/runtimeconfig"
)

type doctorCheck struct {
	name    string
	ok      bool
	details string
}

type whoAmIClient interface {
	WhoAmI(ctx context.Context) (string, error)
}

func runDoctor(output io.Writer, errorOutput io.Writer) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	client := hub.NewClient(settings.HubURL, settings.Token)
	return reportChecks(doctorChecks(settings, client), output, errorOutput)
}

func doctorChecks(settings runtimeconfig.Settings, client whoAmIClient) []doctorCheck {
	return []doctorCheck{
		checkProjectFile(settings),
		checkInputFile("train records", settings.TrainFile),
		checkInputFile("test records", settings.TestFile),
		checkMask(settings.MaskPath),
		checkHubAuth(settings, client),
	}
}

func reportChecks(checks []doctorCheck, output io.Writer, errorOutput io.Writer) error {
	hasFailure := false
	for _, check := range checks {
		status := "PASS"
		if !check.ok {
			status = "FAIL"
			hasFailure = true
		}
		fmt.Fprintf(output, "[%s] %s: %s\n", status, check.name, check.details)
	}
	if hasFailure {
		fmt.Fprintln(errorOutput, "")
		fmt.Fprintln(errorOutput, "restoredit doctor found configuration issues.")
		fmt.Fprintln(errorOutput, "Fix the failing checks and rerun: restoredit doctor")
		return fmt.Errorf("one or more doctor checks failed")
	}
	fmt.Fprintln(output, "")
	fmt.Fprintln(output, "restoredit doctor passed: inputs, mask, and hub access look good.")
	return nil
}

func checkProjectFile(settings runtimeconfig.Settings) doctorCheck {
	if settings.ProjectFile == "" {
		return doctorCheck{
			name:    "project file",
			ok:      true,
			details: fmt.Sprintf("no %s found, using defaults (root %s)", runtimeconfig.ProjectFileName, settings.Root),
		}
	}
	return doctorCheck{
		name:    "project file",
		ok:      true,
		details: fmt.Sprintf("using %s (root %s)", settings.ProjectFile, settings.Root),
	}
}

func checkInputFile(name string, path string) doctorCheck {
	info, err := os.Stat(path)
	if err != nil {
		return doctorCheck{name: name, ok: false, details: fmt.Sprintf("cannot read %s (%v)", path, err)}
	}
	if info.IsDir() {
		return doctorCheck{name: name, ok: false, details: fmt.Sprintf("%s is a directory", path)}
	}
	return doctorCheck{name: name, ok: true, details: fmt.Sprintf("%s (%d bytes)", path, info.Size())}
}

func checkMask(path string) doctorCheck {
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return doctorCheck{name: "mask", ok: false, details: fmt.Sprintf("%s is a directory", path)}
		}
		return doctorCheck{name: "mask", ok: true, details: fmt.Sprintf("%s exists", path)}
	}
	dir := filepath.Dir(path)
	probe, err := os.CreateTemp(dir, ".restoredit-doctor-*")
	if err != nil {
		return doctorCheck{
			name:    "mask",
			ok:      false,
			details: fmt.Sprintf("cannot create %s (%v)", path, err),
		}
	}
	probe.Close()
	_ = os.Remove(probe.Name())
	return doctorCheck{name: "mask", ok: true, details: fmt.Sprintf("%s will be created on the next run", path)}
}

func checkHubAuth(settings runtimeconfig.Settings, client whoAmIClient) doctorCheck {
	if settings.Token == "" {
		return doctorCheck{
			name:    "hub auth",
			ok:      false,
			details: "HF_TOKEN is empty (run restoredit login <token>)",
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user, err := client.WhoAmI(ctx)
	if err != nil {
		if hub.IsUnauthorized(err) {
			return doctorCheck{name: "hub auth", ok: false, details: "token was rejected by " + settings.HubURL}
		}
		return doctorCheck{
			name:    "hub auth",
			ok:      false,
			details: fmt.Sprintf("cannot reach %s (%v)", settings.HubURL, err),
		}
	}
	return doctorCheck{
		name:    "hub auth",
		ok:      true,
		details: fmt.Sprintf("authenticated as %s, pushing to %s", user, settings.RepoID),
	}
}
