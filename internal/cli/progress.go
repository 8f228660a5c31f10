package cli

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// spinner is an indeterminate progress indicator whose label can change while
// it spins. A disabled spinner ignores every call.
type spinner struct {
	bar    *progressbar.ProgressBar
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

func startSpinner(enabled bool, description string) *spinner {
	return startSpinnerTo(os.Stderr, enabled, description)
}

func startSpinnerTo(w io.Writer, enabled bool, description string) *spinner {
	if !enabled {
		return &spinner{}
	}

	s := &spinner{
		bar: progressbar.NewOptions(
			-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(80*time.Millisecond),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish(),
		),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				_ = s.bar.Finish()
				return
			case <-ticker.C:
				_ = s.bar.Add(1)
			}
		}
	}()

	return s
}

func (s *spinner) Describe(description string) {
	if s.bar == nil {
		return
	}
	s.bar.Describe(description)
}

func (s *spinner) Stop() {
	if s.bar == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}
