// Package workloop implements the top-level pump that iterates the
// manifest, consults Admission and the Supervisor, idles briefly when
// blocked, and reports the final exit status. Grounded on the teacher's
// cmd/build.go runBuild() skeleton (load → build state → run →
// exit-code-from-failures) and its SIGINT/SIGTERM signal-goroutine shape,
// generalized from a package build to a manifest of arbitrary input files.
package workloop

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batchrun/admission"
	"batchrun/calibrate"
	"batchrun/config"
	"batchrun/logging"
	"batchrun/sampler"
	"batchrun/supervisor"

	"github.com/sirupsen/logrus"
)

const idleSleep = 100 * time.Millisecond

// Loop bundles the components the work loop drives. Calibrator may be
// calibrate.Noop{} or a *calibrate.Probe.
type Loop struct {
	Spec       *config.JobSpec
	Sampler    *sampler.Sampler
	Admission  *admission.Controller
	Supervisor *supervisor.Supervisor
	Calibrator calibrate.Strategy
	Log        *logrus.Logger
}

// New wires the six-component stack from a JobSpec, ready for Run.
func New(spec *config.JobSpec, log *logrus.Logger, calibrator calibrate.Strategy) *Loop {
	interval := time.Duration(spec.MonitoringIntervalSeconds * float64(time.Second))
	smp := sampler.New(spec.OutputDir, interval)
	sup := supervisor.New(spec, smp, log, 5*time.Second)
	adm := admission.New(spec, smp, spec.MaxProcessesCap)

	return &Loop{
		Spec:       spec,
		Sampler:    smp,
		Admission:  adm,
		Supervisor: sup,
		Calibrator: calibrator,
		Log:        log,
	}
}

// Run drives manifest to completion and returns the process exit code: 0 if
// terminal failures is empty and every manifest entry is in completed, 1
// otherwise. A SIGINT/SIGTERM during the run triggers a graceful-then-forced
// shutdown of all active children and a non-zero exit.
func (l *Loop) Run(manifest []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interrupted := false
	go func() {
		if _, ok := <-sigCh; ok {
			l.Log.Warn("shutdown requested, draining active children")
			interrupted = true
			l.Supervisor.ShutdownAll()
			cancel()
		}
	}()

	if len(manifest) > 0 {
		l.runCalibration(ctx, manifest[0])
	}

	l.pump(ctx, manifest)

	completed, terminalFailures := l.Supervisor.Outcomes()
	logging.Tally(l.Log, len(completed), len(terminalFailures))

	if interrupted {
		return 1
	}
	if len(terminalFailures) > 0 {
		return 1
	}
	if len(completed) != len(manifest) {
		return 1
	}
	return 0
}

// runCalibration runs once before the main loop if the manifest is
// non-empty. A proposed cap raises or lowers Admission's baseline; the
// probe input itself is left for the main loop to process as ordinary work
// (the Calibrator already removed it from Supervisor/Sampler state).
func (l *Loop) runCalibration(ctx context.Context, probeInput string) {
	limits, ok := l.Calibrator.Calibrate(ctx, probeInput)
	if !ok {
		return
	}
	l.Admission.SetMaxProcesses(limits.MaxProcesses)
	l.Log.WithFields(logrus.Fields{
		"max_processes": limits.MaxProcesses,
	}).Info("calibration applied")
}

// pump is the main admission/reap/start cycle: refresh resource state,
// reconcile throttling, reap finished children, admit as many new children
// as the cap and ceilings allow, then idle briefly if nothing more can run.
//
// A file that fails without exhausting max_retries is not dropped: ReapAll's
// result feeds a retry queue that the admission loop drains ahead of
// untouched manifest entries from the pass after the one that reaped it, so
// Supervisor.Start is called again for that input on a later pass until it
// either succeeds or goes terminal.
func (l *Loop) pump(ctx context.Context, manifest []string) {
	index := 0
	var retryQueue []string

	pending := func() bool {
		return index < len(manifest) || len(retryQueue) > 0
	}

	for pending() || l.Supervisor.ActiveCount() > 0 {
		l.Sampler.Refresh()
		if reason, transitioned := l.Admission.ReconcileThrottle(l.Supervisor.ActiveCount()); transitioned {
			l.Log.WithField("reason", reason).Info("throttle state changed")
		}
		// Retry-eligible files reaped on this pass join retryQueue only after
		// this pass's admission loop, so they are re-admitted on the next pass.
		var reapedRetries []string
		for _, r := range l.Supervisor.ReapAll() {
			if r.Outcome == supervisor.OutcomeFailedRetryable {
				reapedRetries = append(reapedRetries, r.InputFile)
			}
		}

		for pending() && l.Admission.MayStart(l.Supervisor.ActiveCount()) {
			var file string
			if len(retryQueue) > 0 {
				file = retryQueue[0]
				retryQueue = retryQueue[1:]
			} else {
				file = manifest[index]
				index++
			}
			if l.Supervisor.IsSettled(file) {
				continue
			}
			if _, err := l.Supervisor.Start(ctx, file); err != nil {
				l.Log.WithField("input_file", file).WithError(err).Error("missing input, recorded as terminal failure")
				l.recordMissingInput(file)
			}
		}
		retryQueue = append(retryQueue, reapedRetries...)

		select {
		case <-ctx.Done():
			return
		default:
		}

		if l.Supervisor.ActiveCount() == 0 && !l.Admission.MayStart(0) && !pending() {
			break
		}
		if l.Supervisor.ActiveCount() > 0 {
			time.Sleep(idleSleep)
		}
	}
}

// recordMissingInput handles a missing-input error surfaced by
// Supervisor.Start: the supervisor doesn't swallow it internally, so the
// loop is the one that records the terminal outcome.
func (l *Loop) recordMissingInput(file string) {
	l.Supervisor.MarkTerminal(file)
}
