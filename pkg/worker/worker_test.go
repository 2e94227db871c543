package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalbuild/vorpal/pkg/artifact"
	"github.com/vorpalbuild/vorpal/pkg/store"
)

func TestExpandEnv(t *testing.T) {
	out := expandEnv("hello $NAME, output at $VORPAL_OUTPUT", []string{"NAME=world", "VORPAL_OUTPUT=/tmp/out"})
	assert.Equal(t, "hello world, output at /tmp/out", out)
}

func TestExpandEnvIgnoresMalformedEntries(t *testing.T) {
	out := expandEnv("$FOO stays", []string{"malformed-entry"})
	assert.Equal(t, "$FOO stays", out)
}

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T) (*Server, string) {
	root := t.TempDir()
	return NewServer(store.New(root), nil, nil, artifact.SystemX8664Linux, nil, silentLogger()), root
}

func TestRunStepWritesOutputViaShellEntrypoint(t *testing.T) {
	s, root := newTestServer(t)

	workspace := filepath.Join(root, "workspace")
	outputPath := filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.MkdirAll(outputPath, 0o755))

	step := artifact.Step{
		Entrypoint:   "/bin/sh",
		Arguments:    []string{"-c", "echo -n $GREETING > $VORPAL_OUTPUT/out.txt"},
		Environments: []string{"GREETING=hello-worker"},
	}

	err := s.runStep(t.Context(), "deadbeef", "default", outputPath, step, workspace, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outputPath, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello-worker", string(data))
}

func TestRunStepMissingEntrypointErrors(t *testing.T) {
	s, root := newTestServer(t)
	workspace := filepath.Join(root, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))

	err := s.runStep(t.Context(), "deadbeef", "default", root, artifact.Step{}, workspace, nil)
	require.Error(t, err)
}

func TestRunStepMissingDependencyArtifactErrors(t *testing.T) {
	s, root := newTestServer(t)
	workspace := filepath.Join(root, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))

	step := artifact.Step{Entrypoint: "/bin/sh", Artifacts: []string{"missing-digest"}}
	err := s.runStep(t.Context(), "deadbeef", "default", root, step, workspace, nil)
	require.Error(t, err)
}

func TestRunStepUsesScriptWhenEntrypointAbsent(t *testing.T) {
	s, root := newTestServer(t)
	workspace := filepath.Join(root, "workspace")
	outputPath := filepath.Join(root, "output")
	require.NoError(t, os.MkdirAll(workspace, 0o755))
	require.NoError(t, os.MkdirAll(outputPath, 0o755))

	step := artifact.Step{
		Script: "#!/bin/sh\necho -n scripted > $VORPAL_OUTPUT/out.txt\n",
	}

	err := s.runStep(t.Context(), "deadbeef", "default", outputPath, step, workspace, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outputPath, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "scripted", string(data))
}
