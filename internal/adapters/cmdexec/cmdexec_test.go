package cmdexec

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	res, err := Local{}.Run(context.Background(), "", nil, "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunReportsExitCode(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	res, err := Local{}.Run(context.Background(), "", nil, "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "broken")
}

func TestCombinedJoinsStreams(t *testing.T) {
	t.Parallel()

	res := Result{Stdout: "a", Stderr: "b"}
	assert.Contains(t, res.Combined(), "a")
	assert.Contains(t, res.Combined(), "b")
}
