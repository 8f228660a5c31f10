package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpinnerEnabled(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	s := startSpinnerTo(out, true, "Transcribing")
	s.Describe("Transcribing (direct failed, trying simple)")
	s.Stop()
	s.Stop()
}

func TestSpinnerDisabledIsInert(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	s := startSpinnerTo(out, false, "Transcribing")
	s.Describe("ignored")
	s.Stop()
	require.Empty(t, out.String())
}
