// Package admission decides whether one more child may start, and adjusts
// the effective concurrency cap up or down in response to observed resource
// pressure. The shape — a cap derived from a ratio against configured
// ceilings, floored to at least 1 — generalizes the teacher's
// stats/throttler.go WorkerThrottler, which derives a dynamic cap from load
// average and swap percentage via linear interpolation; here the formula is
// driven by CPU/memory/disk pressure against configured ceilings instead.
package admission

import (
	"math"

	"batchrun/config"
	"batchrun/sampler"
)

// State is the current throttle state: whether throttled, the pre-throttle
// baseline cap, and the cap currently in effect.
type State struct {
	Throttled             bool
	OriginalMaxProcesses  int
	EffectiveMaxProcesses int
}

// Controller decides admission and owns throttle state, since throttle
// transitions are its exclusive concern.
type Controller struct {
	spec    *config.JobSpec
	sampler *sampler.Sampler

	state State
}

// New constructs a Controller with effective_max_processes seeded from
// maxProcesses (either JobSpec.MaxProcessesCap or a calibrated override).
func New(spec *config.JobSpec, smp *sampler.Sampler, maxProcesses int) *Controller {
	return &Controller{
		spec:    spec,
		sampler: smp,
		state: State{
			OriginalMaxProcesses:  maxProcesses,
			EffectiveMaxProcesses: maxProcesses,
		},
	}
}

// MayStart checks the count-based cap first, then the strict-inequality
// ceiling checks against the latest snapshot.
func (c *Controller) MayStart(activeChildren int) bool {
	if activeChildren >= c.state.EffectiveMaxProcesses {
		return false
	}
	snap, ok := c.sampler.GetSnapshot()
	if !ok {
		// No snapshot has ever been taken; refuse rather than admit blind.
		return false
	}
	return snap.CPUPercent < c.spec.CPUPercentMax &&
		snap.MemoryPercent < c.spec.MemoryPercentMax &&
		snap.DiskPercent < c.spec.DiskPercentMax
}

// ReconcileThrottle re-evaluates throttle state against the latest snapshot
// and the current active-children count. Call it on every refresh that
// produces a fresh snapshot. It returns a (reason, transitioned) pair when a
// transition occurred, for the caller to log; an empty reason means no
// transition happened this call.
func (c *Controller) ReconcileThrottle(activeChildren int) (reason string, transitioned bool) {
	snap, ok := c.sampler.GetSnapshot()
	if !ok {
		return "", false
	}
	return c.reconcileWithSnapshot(snap, activeChildren)
}

// reconcileWithSnapshot is ReconcileThrottle's pure core, split out so tests
// can exercise the hysteresis arithmetic without faking OS-level sampling.
func (c *Controller) reconcileWithSnapshot(snap sampler.Snapshot, activeChildren int) (reason string, transitioned bool) {
	pressure := c.pressure(snap)

	if !c.state.Throttled && pressure > c.spec.ThrottleThreshold {
		minRatio := c.minRatio(snap)
		newMax := int(math.Floor(float64(activeChildren) * minRatio * 0.8))
		if newMax < 1 {
			newMax = 1
		}
		c.state.Throttled = true
		c.state.EffectiveMaxProcesses = newMax
		return "pressure exceeded throttle threshold", true
	}

	if c.state.Throttled && pressure < c.spec.RecoveryThreshold {
		c.state.Throttled = false
		c.state.EffectiveMaxProcesses = c.state.OriginalMaxProcesses
		return "pressure dropped below recovery threshold", true
	}

	return "", false
}

// pressure is the max of the three observed/ceiling ratios.
func (c *Controller) pressure(snap sampler.Snapshot) float64 {
	cpu := ratio(snap.CPUPercent, c.spec.CPUPercentMax)
	mem := ratio(snap.MemoryPercent, c.spec.MemoryPercentMax)
	disk := ratio(snap.DiskPercent, c.spec.DiskPercentMax)
	return math.Max(cpu, math.Max(mem, disk))
}

func ratio(observed, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return observed / ceiling
}

// minRatio is the minimum of ceiling/observed across the three dimensions,
// used to scale the new effective cap downward.
func (c *Controller) minRatio(snap sampler.Snapshot) float64 {
	r := math.Min(invRatio(c.spec.CPUPercentMax, snap.CPUPercent), invRatio(c.spec.MemoryPercentMax, snap.MemoryPercent))
	return math.Min(r, invRatio(c.spec.DiskPercentMax, snap.DiskPercent))
}

func invRatio(ceiling, observed float64) float64 {
	if observed <= 0 {
		return 1
	}
	return ceiling / observed
}

// State returns a copy of the current ThrottleState.
func (c *Controller) State() State {
	return c.state
}

// SetMaxProcesses overrides the baseline cap. Used once by the Calibrator at
// startup to raise or lower the baseline before the main loop begins.
func (c *Controller) SetMaxProcesses(n int) {
	c.state.OriginalMaxProcesses = n
	if !c.state.Throttled {
		c.state.EffectiveMaxProcesses = n
	}
}
