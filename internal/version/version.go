package version

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Set at build time with -ldflags "-X github.com/fmueller/voxserve/internal/version.Version=...".
var (
	Version = "0.3.0"
	Commit  = "unknown"
	Date    = "unknown"
)

var (
	resolveOnce sync.Once
	resolved    string
)

// Resolve returns the version string. Inside a git checkout whose HEAD is not
// on a release tag the describe output is appended. The lookup runs once per
// process because health checks and user agents ask for it repeatedly.
func Resolve() string {
	resolveOnce.Do(func() {
		resolved = resolveVersion(Version, runGit)
	})
	return resolved
}

// Detailed includes the commit and build date when they were stamped.
func Detailed() string {
	return detailed(Resolve(), Commit, Date)
}

// UserAgent is sent with outgoing HTTP requests such as model downloads.
func UserAgent() string {
	return "voxserve/" + Resolve()
}

func detailed(base, commit, date string) string {
	var parts []string
	if commit != "" && commit != "unknown" {
		parts = append(parts, "commit="+commit)
	}
	if date != "" && date != "unknown" {
		parts = append(parts, "built="+date)
	}
	if len(parts) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(parts, ", "))
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := gitSuffix(base, git)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func gitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}

	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(desc, "v"+base+"-")
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
