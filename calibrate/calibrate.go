// Package calibrate implements a one-shot probe that launches a single
// instance of the target binary, waits for its CPU usage to stabilize, and
// derives a recommended concurrency cap and per-process percent ceilings.
// This is close to a direct Go port of
// _examples/original_source/orchestrator/resource_calibration.py's
// ProcessCalibrator.calibrate, including its NoopCalibrator/ProcessCalibrator
// strategy split, so the run loop can work equally well with either the
// probing variant or a noop.
package calibrate

import (
	"context"
	"math"
	"os"
	"time"

	"batchrun/config"
	"batchrun/sampler"
	"batchrun/supervisor"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"github.com/sirupsen/logrus"
)

// ProposedLimits is the cap and per-process ceilings a calibration run
// derives.
type ProposedLimits struct {
	MaxProcesses  int
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// Strategy is the calibrator interface: either a probing calibrator or a
// noop that always returns none.
type Strategy interface {
	Calibrate(ctx context.Context, probeInput string) (*ProposedLimits, bool)
}

// Noop never calibrates; JobSpec defaults stand unchanged.
type Noop struct{}

func (Noop) Calibrate(ctx context.Context, probeInput string) (*ProposedLimits, bool) {
	return nil, false
}

const (
	stabilityDeltaPct  = 1.0
	stableStreakNeeded = 3
	maxPollAttempts    = 10
	pollInterval       = 50 * time.Millisecond
)

// Probe is the probing Calibrator. It reuses the Supervisor's fork/kill
// machinery for the probe child rather than duplicating process-management
// code, then removes the probe from Supervisor/Sampler state so the work
// loop re-queues probeInput as ordinary work; the probe child must never
// count toward completed or terminal failures.
type Probe struct {
	spec *config.JobSpec
	smp  *sampler.Sampler
	sup  *supervisor.Supervisor
	log  *logrus.Logger
}

func NewProbe(spec *config.JobSpec, smp *sampler.Sampler, sup *supervisor.Supervisor, log *logrus.Logger) *Probe {
	return &Probe{spec: spec, smp: smp, sup: sup, log: log}
}

func (p *Probe) Calibrate(ctx context.Context, probeInput string) (*ProposedLimits, bool) {
	record, err := p.sup.Start(ctx, probeInput)
	if err != nil || record == nil {
		p.log.WithField("probe_input", probeInput).Warn("calibration probe failed to start, using defaults")
		return nil, false
	}

	// Give the process a moment to start, mirroring the Python
	// implementation's time.sleep(0.1) before the first CPU sample.
	time.Sleep(100 * time.Millisecond)

	lastCPU := 0.0
	stableStreak := 0
	stabilized := false
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		// ForceRefresh, not Refresh: the work loop's Sampler debounces at
		// MonitoringIntervalSeconds (5s by default), which would otherwise
		// make every poll after the first return the same cached reading
		// and stabilize on stale data instead of a real steady state.
		p.smp.ForceRefresh()
		currentCPU, _, ok := p.smp.ChildUsage(probeInput)
		if !ok {
			// The probe already exited or vanished; give up and keep defaults.
			p.cleanup(probeInput)
			return nil, false
		}
		if math.Abs(currentCPU-lastCPU) < stabilityDeltaPct {
			stableStreak++
			if stableStreak >= stableStreakNeeded {
				stabilized = true
				break
			}
		} else {
			stableStreak = 0
		}
		lastCPU = currentCPU
		time.Sleep(pollInterval)
	}

	if !stabilized {
		p.log.WithField("probe_input", probeInput).Warn("calibration probe never stabilized, using defaults")
		p.cleanup(probeInput)
		return nil, false
	}

	measuredCPU, rss, _ := p.smp.ChildUsage(probeInput)
	limits, ok := p.deriveLimits(probeInput, measuredCPU, rss)
	p.cleanup(probeInput)
	if !ok {
		return nil, false
	}

	p.log.WithFields(logrus.Fields{
		"max_processes":  limits.MaxProcesses,
		"cpu_percent":    limits.CPUPercent,
		"memory_percent": limits.MemoryPercent,
		"disk_percent":   limits.DiskPercent,
	}).Info("calibration complete")
	return limits, true
}

// deriveLimits is a near-literal port of resource_calibration.py's
// cap_cpu/cap_mem/cap_disk/headroom arithmetic.
func (p *Probe) deriveLimits(probeInput string, measuredCPU float64, rss uint64) (*ProposedLimits, bool) {
	cpuCount, err := cpu.Counts(true)
	if err != nil || cpuCount < 1 {
		cpuCount = 1
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, false
	}
	du, err := disk.Usage(p.spec.OutputDir)
	if err != nil {
		return nil, false
	}

	info, err := os.Stat(probeInput)
	if err != nil {
		return nil, false
	}
	estimatedOutputSize := float64(info.Size()) * 2
	if estimatedOutputSize < 1024 {
		estimatedOutputSize = 1024
	}

	rssFloat := float64(rss)
	if rssFloat < 1024 {
		rssFloat = 1024
	}

	capCPU := intFloor(float64(cpuCount) * 0.8)
	capMem := intFloor(float64(vm.Total) * 0.8 / rssFloat)
	capDisk := intFloor(float64(du.Free) * 0.8 / estimatedOutputSize)

	maxProcesses := minInt(capCPU, minInt(capMem, capDisk))
	if maxProcesses < 1 {
		maxProcesses = 1
	}

	limits := &ProposedLimits{
		MaxProcesses:  maxProcesses,
		CPUPercent:    math.Max(1.0, measuredCPU) * 1.2,
		MemoryPercent: rssFloat / float64(vm.Total) * 100 * 1.2,
		DiskPercent:   estimatedOutputSize / float64(du.Free) * 100 * 1.2,
	}
	return limits, true
}

// cleanup terminates the probe child (grace then force-kill) and removes it
// from Sampler/Supervisor state so the work loop re-queues probeInput as
// ordinary work rather than counting it as completed or failed.
func (p *Probe) cleanup(probeInput string) {
	p.sup.ForgetProbe(probeInput)
}

func intFloor(f float64) int {
	if f < 1 {
		return 1
	}
	return int(math.Floor(f))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
