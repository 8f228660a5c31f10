package transcribe

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fmueller/voxserve/internal/whisper"
)

var (
	ErrPoolFull    = errors.New("worker pool queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
	ErrNoOutput    = errors.New("engine produced no output")
	ErrNoStrategy  = errors.New("no transcription strategies configured")
)

// CommandLog captures one engine invocation.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
}

func (l CommandLog) CommandLine() string {
	return strings.Join(append([]string{l.Command}, l.Args...), " ")
}

type StrategyError struct {
	Strategy   Name        `json:"strategy"`
	Message    string      `json:"message"`
	CommandLog *CommandLog `json:"commandLog,omitempty"`
	Err        error       `json:"-"`
}

func (e *StrategyError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog == nil {
		return fmt.Sprintf("%s: %s", e.Strategy, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Strategy, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

func (e *StrategyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExhaustedError is returned when every strategy failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if e == nil || len(e.Attempts) == 0 {
		return "all transcription strategies failed"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("all %d transcription strategies failed; last error: %v", len(e.Attempts), last.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Last is the error of the final attempt.
func (e *ExhaustedError) Last() *StrategyError {
	if e == nil || len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func asStrategyError(name Name, err error) *StrategyError {
	var se *StrategyError
	if errors.As(err, &se) {
		return se
	}
	return &StrategyError{Strategy: name, Message: err.Error(), Err: err}
}

// commandFailure builds the error for an engine run that did not exit cleanly.
func commandFailure(name Name, log CommandLog, runErr error) *StrategyError {
	msg := strings.TrimSpace(log.Stderr)
	if msg == "" {
		msg = runErr.Error()
	}

	err := runErr
	if diag := whisper.Diagnose(log.Stderr, runErr); diag != nil {
		err = errors.Join(diag, runErr)
		msg = diag.Error()
	}

	return &StrategyError{Strategy: name, Message: msg, CommandLog: &log, Err: err}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
