package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/capture"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	t.Setenv("EXECCORE_TEMP_ROOT", t.TempDir())
	t.Setenv("EXECCORE_LOGGING_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunWritesJSONReport(t *testing.T) {
	out, err := execute(t, "run", "--", "/bin/sh", "-c", "echo captured")
	require.NoError(t, err)

	var rep capture.Report
	require.NoError(t, sonic.UnmarshalString(out, &rep))
	assert.Equal(t, "completed", rep.State)
	require.NotNil(t, rep.ExitCode)
	assert.Zero(t, *rep.ExitCode)
	assert.Equal(t, int64(9), rep.Stdout.Bytes)

	// Every temp item is gone once the command returns.
	entries, err := os.ReadDir(os.Getenv("EXECCORE_TEMP_ROOT"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunWritesYAMLReportAndPersists(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.txt.zst")

	out, err := execute(t, "run", "--format", "yaml", "--out", dst, "--compress", "zstd",
		"--", "/bin/sh", "-c", "echo persisted")
	require.NoError(t, err)

	var rep capture.Report
	require.NoError(t, yaml.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "completed", rep.State)
	assert.Equal(t, dst, rep.Stdout.Destination)
	assert.Equal(t, "zstd", rep.Stdout.Compression)
	assert.FileExists(t, dst)
}

func TestRunRecordsDigest(t *testing.T) {
	out, err := execute(t, "run", "--digest", "sha256", "--", "/bin/sh", "-c", "printf abc")
	require.NoError(t, err)

	var rep capture.Report
	require.NoError(t, sonic.UnmarshalString(out, &rep))
	assert.Equal(t, "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", rep.Stdout.Digest)
	assert.Empty(t, rep.Stderr.Digest)
}

func TestRunPropagatesExitCode(t *testing.T) {
	_, err := execute(t, "run", "--", "/bin/sh", "-c", "exit 7")

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 7, exit.code)
}

func TestRunSignaledChildExitsWithSignalStatus(t *testing.T) {
	_, err := execute(t, "run", "--", "/bin/sh", "-c", "kill -TERM $$")

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 143, exit.code)
}

func TestRunExecFailure(t *testing.T) {
	out, err := execute(t, "run", "--", filepath.Join(t.TempDir(), "missing"))

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, exitExecFailed, exit.code)
	assert.Contains(t, out, "exec_failed")
}

func TestRunTimeout(t *testing.T) {
	out, err := execute(t, "run", "--timeout", "100ms", "--", "sleep", "10")

	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, exitInterrupted, exit.code)
	assert.Contains(t, out, "interrupted")
}

func TestRunRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "run", "--compress", "lz4", "--", "true")
	assert.ErrorContains(t, err, "unsupported compression")

	_, err = execute(t, "run", "--format", "xml", "--", "true")
	assert.ErrorContains(t, err, "unsupported report format")

	_, err = execute(t, "run", "--digest", "md5", "--", "true")
	assert.ErrorContains(t, err, "unsupported hash algorithm")

	_, err = execute(t, "run")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	root := t.TempDir()
	orphan := filepath.Join(root, "execcore"+id.Separator+id.NewGenerator().GenerateAt(time.Now().Add(-48*time.Hour)).String())
	require.NoError(t, os.Mkdir(orphan, 0o755))

	t.Setenv("EXECCORE_TEMP_ROOT", root)
	t.Setenv("EXECCORE_LOGGING_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sweep"})
	require.NoError(t, cmd.Execute())

	assert.True(t, strings.HasPrefix(out.String(), "swept 1 orphaned item(s)"))
	assert.NoDirExists(t, orphan)
}

func TestExitStatus(t *testing.T) {
	zero, three := 0, 3

	assert.NoError(t, exitStatus(&capture.Report{State: "completed", ExitCode: &zero}))

	tests := []struct {
		rep  capture.Report
		want int
	}{
		{capture.Report{State: "completed", ExitCode: &three}, 3},
		{capture.Report{State: "exec_failed"}, exitExecFailed},
		{capture.Report{State: "interrupted"}, exitInterrupted},
	}
	for _, tt := range tests {
		var exit *exitError
		require.ErrorAs(t, exitStatus(&tt.rep), &exit)
		assert.Equal(t, tt.want, exit.code)
	}
}
