package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/voxserve/internal/config"
	"github.com/fmueller/voxserve/internal/locator"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/spf13/cobra"
)

var errDoctorFailed = errors.New("one or more checks failed")

type checkStatus string

const (
	checkPass checkStatus = "PASS"
	checkFail checkStatus = "FAIL"
)

type checkItem struct {
	Name    string
	Status  checkStatus
	Message string
	Hint    string
}

func newDoctorCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the engine, model and directories are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}

			items, err := runChecks(cmd.Context(), cfg, app)
			if err != nil {
				return err
			}
			return printChecks(cmd.OutOrStdout(), items)
		},
	}

	bindLoggingFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindResourceFlags(cmd, app)
	bindServeFlags(cmd, app)

	return cmd
}

func runChecks(ctx context.Context, cfg *config.Config, app *appState) ([]checkItem, error) {
	hostExe, _ := platform.ResolveHostExecutable(cfg.HostExecutable)
	loc, err := newLocator(cfg, hostExe, app.log())
	if err != nil {
		return nil, err
	}

	var items []checkItem
	for _, status := range loc.Health(ctx) {
		items = append(items, resourceCheck(status, cfg))
	}
	items = append(items,
		writableDirCheck("upload directory", cfg.UploadDir),
		writableDirCheck("model directory", cfg.ModelDir),
	)
	return items, nil
}

func resourceCheck(status locator.ResourceStatus, cfg *config.Config) checkItem {
	name := fmt.Sprintf("%s %s", status.Kind, status.Name)
	if status.Found {
		return checkItem{Name: name, Status: checkPass, Message: "found at " + status.Path}
	}

	item := checkItem{
		Name:    name,
		Status:  checkFail,
		Message: fmt.Sprintf("not found in %d locations: %s", len(status.Candidates), strings.Join(status.Candidates, ", ")),
	}
	switch status.Kind {
	case locator.KindModel:
		item.Hint = fmt.Sprintf("run `voxserve setup --model %s` or place the file in %s", cfg.Model, cfg.ModelDir)
	case locator.KindBinary:
		item.Hint = "install whisper.cpp or set VOXSERVE_WHISPER_PATH to the whisper-cli binary"
	}
	return item
}

func writableDirCheck(name, dir string) checkItem {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkItem{Name: name, Status: checkFail, Message: err.Error(), Hint: "choose a directory the service user can create"}
	}

	probe, err := os.CreateTemp(dir, ".voxserve-doctor-*")
	if err != nil {
		return checkItem{Name: name, Status: checkFail, Message: fmt.Sprintf("%s is not writable: %v", dir, err), Hint: "fix the directory permissions"}
	}
	probe.Close()
	_ = os.Remove(probe.Name())

	return checkItem{Name: name, Status: checkPass, Message: dir + " is writable"}
}

func printChecks(w io.Writer, items []checkItem) error {
	failed := false
	for _, item := range items {
		fmt.Fprintf(w, "[%s] %s: %s\n", item.Status, item.Name, item.Message)
		if item.Status == checkFail {
			failed = true
			if item.Hint != "" {
				fmt.Fprintf(w, "       hint: %s\n", item.Hint)
			}
		}
	}
	if failed {
		return errDoctorFailed
	}
	return nil
}
