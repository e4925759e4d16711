package supervisor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"batchrun/config"
	"batchrun/sampler"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	return log
}

func waitForOutcome(t *testing.T, s *Supervisor, inputFile string, timeout time.Duration) Outcome {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, r := range s.ReapAll() {
			if r.InputFile == inputFile {
				return r.Outcome
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for outcome on %s", inputFile)
	return OutcomeStillRunning
}

func TestStart_MissingInputReturnsError(t *testing.T) {
	spec := &config.JobSpec{BinaryPath: "/bin/true", OutputDir: t.TempDir(), MaxRetries: 3}
	smp := sampler.New(spec.OutputDir, time.Hour)
	s := New(spec, smp, testLogger(), 5*time.Second)

	record, err := s.Start(context.Background(), "/nonexistent/path")
	require.Nil(t, record)
	require.ErrorIs(t, err, ErrMissingInput)
}

func TestStart_SuccessfulChildCompletes(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(input, []byte("hi"), 0o644))
	outDir := filepath.Join(dir, "out")

	spec := &config.JobSpec{
		BinaryPath:   "/bin/cp",
		Flags:        []string{"{input_file}", "{output_file}"},
		OutputDir:    outDir,
		OutputSuffix: ".bak",
		MaxRetries:   3,
	}
	smp := sampler.New(outDir, time.Hour)
	s := New(spec, smp, testLogger(), 5*time.Second)

	record, err := s.Start(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, record)

	outcome := waitForOutcome(t, s, input, 2*time.Second)
	require.Equal(t, OutcomeSucceeded, outcome)

	completed, failures := s.Outcomes()
	require.Contains(t, completed, input)
	require.Empty(t, failures)
}

func TestStart_RetriesThenTerminal(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(input, []byte("hi"), 0o644))

	spec := &config.JobSpec{
		BinaryPath: "/bin/sh",
		Flags:      []string{"-c", "exit 1"},
		OutputDir:  t.TempDir(),
		MaxRetries: 3,
	}
	smp := sampler.New(spec.OutputDir, time.Hour)
	s := New(spec, smp, testLogger(), 5*time.Second)

	var lastOutcome Outcome
	for attempt := 0; attempt < spec.MaxRetries; attempt++ {
		_, err := s.Start(context.Background(), input)
		require.NoError(t, err)
		lastOutcome = waitForOutcome(t, s, input, 2*time.Second)
	}

	require.Equal(t, OutcomeFailedTerminal, lastOutcome)
	_, failures := s.Outcomes()
	require.Contains(t, failures, input)
}

func TestStart_RejectsAlreadyActiveInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(input, []byte("hi"), 0o644))

	spec := &config.JobSpec{
		BinaryPath: "/bin/sleep",
		Flags:      []string{"1"},
		OutputDir:  t.TempDir(),
		MaxRetries: 3,
	}
	smp := sampler.New(spec.OutputDir, time.Hour)
	s := New(spec, smp, testLogger(), 5*time.Second)

	first, err := s.Start(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := s.Start(context.Background(), input)
	require.NoError(t, err)
	require.Nil(t, second, "a file already active must not be forked twice")

	s.ShutdownAll()
}
