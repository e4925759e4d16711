// Package supervisor owns the active-child map keyed by input file, forks
// and reaps children, classifies exit outcomes, and drives the
// retry-bounded state machine.
//
// Grounded on the teacher's build/build.go worker-loop/buildPackage
// lifecycle (per-item UUID via google/uuid, status bookkeeping on
// success/failure, iterating a queue) and
// original_source/orchestrator/process_manager.py's start/poll/stop
// lifecycle (psutil.Process per pid, terminate-then-wait-then-kill on
// stop). The synchronous subprocess model of both sources is replaced with
// the async start/poll split runner.go provides, since poll must be
// non-blocking.
package supervisor

import (
	"context"
	"errors"
	"os"
	"time"

	"batchrun/command"
	"batchrun/config"
	"batchrun/sampler"

	"github.com/sirupsen/logrus"
)

// ErrMissingInput reports an input path that does not exist at Start time.
// It surfaces to the work loop, which translates it into a terminal failure
// for that file.
var ErrMissingInput = errors.New("supervisor: input file does not exist")

// Outcome is poll's classification result for one child.
type Outcome int

const (
	OutcomeStillRunning Outcome = iota
	OutcomeSucceeded
	OutcomeFailedRetryable
	OutcomeFailedTerminal
)

// ReapResult pairs an input file with the outcome ReapAll observed for it.
type ReapResult struct {
	InputFile string
	Outcome   Outcome
}

// Supervisor forks, tracks, and reaps child processes for input files.
type Supervisor struct {
	spec  *config.JobSpec
	smp   *sampler.Sampler
	log   *logrus.Logger
	reg   *registry
	grace time.Duration
}

// New constructs a Supervisor. grace is the terminate-then-kill window used
// both by ShutdownAll and by ForgetProbe.
func New(spec *config.JobSpec, smp *sampler.Sampler, log *logrus.Logger, grace time.Duration) *Supervisor {
	return &Supervisor{spec: spec, smp: smp, log: log, reg: newRegistry(), grace: grace}
}

// ActiveCount returns the number of children currently running.
func (s *Supervisor) ActiveCount() int { return s.reg.activeCount() }

// Outcomes returns the completed and terminal-failure sets accumulated so far.
func (s *Supervisor) Outcomes() (completed, terminalFailures []string) {
	return s.reg.Outcomes()
}

// IsSettled reports whether inputFile is already completed or a terminal
// failure, used by the work loop to skip re-admission.
func (s *Supervisor) IsSettled(inputFile string) bool {
	return s.reg.isCompleted(inputFile) || s.reg.isTerminal(inputFile)
}

// Start forks a child for inputFile. A nil, nil return means the caller
// should simply move on (already active/settled, or a fork failure already
// recorded internally as a terminal failure). A non-nil error is
// ErrMissingInput, which the caller must translate into a terminal failure
// and continue.
func (s *Supervisor) Start(ctx context.Context, inputFile string) (*ChildRecord, error) {
	s.reg.mu.Lock()
	if s.reg.isSettledOrActiveLocked(inputFile) {
		s.reg.mu.Unlock()
		return nil, nil
	}
	s.reg.mu.Unlock()

	if _, err := os.Stat(inputFile); err != nil {
		return nil, ErrMissingInput
	}

	if err := os.MkdirAll(s.spec.OutputDir, 0o755); err != nil {
		s.recordForkFailure(inputFile, err)
		return nil, nil
	}

	argv, needsShell := command.Build(s.spec, inputFile)
	handle, err := startProcess(ctx, argv, needsShell)
	if err != nil {
		s.recordForkFailure(inputFile, err)
		return nil, nil
	}

	record := &ChildRecord{
		InputFile:  inputFile,
		OutputFile: command.OutputPath(s.spec, inputFile),
		AttemptID:  newAttemptID(),
		PID:        handle.pid,
		StartTime:  time.Now(),
		State:      StateRunning,
	}

	s.reg.mu.Lock()
	s.reg.active[inputFile] = record
	s.reg.handles[inputFile] = handle
	s.reg.mu.Unlock()

	s.smp.Register(inputFile, int32(handle.pid))

	s.log.WithFields(logrus.Fields{
		"input_file": inputFile,
		"pid":        handle.pid,
		"attempt_id": record.AttemptID,
	}).Info("child started")

	return record, nil
}

// recordForkFailure places inputFile directly in terminalFailures; a
// fork-time error must never propagate past the Supervisor.
func (s *Supervisor) recordForkFailure(inputFile string, err error) {
	s.reg.mu.Lock()
	s.reg.terminalFailures[inputFile] = true
	s.reg.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"input_file": inputFile,
		"error":      err.Error(),
	}).Error("fork failed, recorded as terminal failure")
}

// poll classifies one child's current state. It is non-blocking.
func (s *Supervisor) poll(inputFile string) Outcome {
	s.reg.mu.Lock()
	handle, ok := s.reg.handles[inputFile]
	record := s.reg.active[inputFile]
	s.reg.mu.Unlock()
	if !ok || record == nil {
		return OutcomeStillRunning
	}

	exited, exitCode := handle.poll()
	if !exited {
		if cpuPct, rss, have := s.smp.ChildUsage(inputFile); have {
			record.LastCPUPct = cpuPct
			record.LastRSSByte = rss
		}
		return OutcomeStillRunning
	}

	stdout, stderr := handle.stdout.String(), handle.stderr.String()
	s.smp.Unregister(inputFile)

	s.reg.mu.Lock()
	delete(s.reg.active, inputFile)
	delete(s.reg.handles, inputFile)
	s.reg.mu.Unlock()

	if exitCode == 0 {
		record.State = StateSucceeded
		s.reg.mu.Lock()
		s.reg.completed[inputFile] = true
		s.reg.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"input_file": inputFile,
			"attempt_id": record.AttemptID,
		}).Info("child succeeded")
		return OutcomeSucceeded
	}

	s.reg.mu.Lock()
	s.reg.retries[inputFile]++
	attempt := s.reg.retries[inputFile]
	terminal := attempt >= s.spec.MaxRetries
	if terminal {
		s.reg.terminalFailures[inputFile] = true
	}
	s.reg.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"input_file": inputFile,
		"attempt_id": record.AttemptID,
		"exit_code":  exitCode,
		"attempt":    attempt,
		"stdout":     stdout,
		"stderr":     stderr,
	}).Warn("child exited non-zero")

	if terminal {
		record.State = StateTerminal
		s.log.WithFields(logrus.Fields{
			"input_file": inputFile,
			"attempts":   attempt,
		}).Error("terminal failure, retries exhausted")
		return OutcomeFailedTerminal
	}

	record.State = StateFailed
	return OutcomeFailedRetryable
}

// ReapAll iterates a snapshot of the active map, tolerating concurrent
// mutation, and polls each child.
func (s *Supervisor) ReapAll() []ReapResult {
	keys := s.reg.snapshotActive()
	results := make([]ReapResult, 0, len(keys))
	for _, inputFile := range keys {
		outcome := s.poll(inputFile)
		if outcome != OutcomeStillRunning {
			results = append(results, ReapResult{InputFile: inputFile, Outcome: outcome})
		}
	}
	return results
}

// ShutdownAll terminates every active child: SIGTERM to its process group,
// a grace period, then SIGKILL. It does not mutate outcome sets; the caller
// reports outcomes computed so far.
func (s *Supervisor) ShutdownAll() {
	keys := s.reg.snapshotActive()
	for _, inputFile := range keys {
		s.reg.mu.Lock()
		handle := s.reg.handles[inputFile]
		s.reg.mu.Unlock()
		if handle == nil {
			continue
		}
		handle.shutdown(s.grace)
		s.smp.Unregister(inputFile)
	}
}

// MarkTerminal records inputFile directly as a terminal failure without
// forking a child. Used when Start returns ErrMissingInput and the caller
// needs to translate that into a terminal failure and continue.
func (s *Supervisor) MarkTerminal(inputFile string) {
	s.reg.mu.Lock()
	s.reg.terminalFailures[inputFile] = true
	s.reg.mu.Unlock()
}

// ForgetProbe terminates inputFile's child (grace then force-kill) and
// removes it from the active map without touching completed or
// terminalFailures, so the caller can re-queue it as ordinary work. Used by
// the calibrator to discard its probe child, which is infrastructure, not a
// counted outcome.
func (s *Supervisor) ForgetProbe(inputFile string) {
	s.reg.mu.Lock()
	handle := s.reg.handles[inputFile]
	delete(s.reg.active, inputFile)
	delete(s.reg.handles, inputFile)
	delete(s.reg.retries, inputFile)
	s.reg.mu.Unlock()

	if handle != nil {
		handle.shutdown(s.grace)
	}
	s.smp.Unregister(inputFile)
}
