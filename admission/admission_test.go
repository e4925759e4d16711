package admission

import (
	"testing"
	"time"

	"batchrun/config"
	"batchrun/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() *config.JobSpec {
	return &config.JobSpec{
		CPUPercentMax:     80,
		MemoryPercentMax:  80,
		DiskPercentMax:    90,
		ThrottleThreshold: 0.9,
		RecoveryThreshold: 0.7,
	}
}

func TestMayStart_RespectsCountCap(t *testing.T) {
	smp := sampler.New(t.TempDir(), time.Hour)
	smp.Refresh()
	c := New(testSpec(), smp, 2)
	assert.False(t, c.MayStart(2), "active children at cap must refuse")
}

func TestMayStart_RefusesWithoutSnapshot(t *testing.T) {
	smp := sampler.New(t.TempDir(), time.Hour)
	c := New(testSpec(), smp, 2)
	assert.False(t, c.MayStart(0), "no snapshot yet must refuse rather than admit blind")
}

func TestReconcileThrottle_ActivatesAboveThreshold(t *testing.T) {
	spec := testSpec()
	smp := sampler.New(t.TempDir(), time.Hour)
	c := New(spec, smp, 4)

	// 76% cpu against an 80 ceiling is a 0.95 ratio, above the 0.9 threshold.
	snap := sampler.Snapshot{CPUPercent: 76, MemoryPercent: 10, DiskPercent: 10}
	reason, transitioned := c.reconcileWithSnapshot(snap, 4)
	require.True(t, transitioned)
	assert.NotEmpty(t, reason)
	assert.True(t, c.State().Throttled)
	assert.GreaterOrEqual(t, c.State().EffectiveMaxProcesses, 1)
}

func TestReconcileThrottle_RecoversBelowThreshold(t *testing.T) {
	spec := testSpec()
	smp := sampler.New(t.TempDir(), time.Hour)
	c := New(spec, smp, 4)
	c.state.Throttled = true
	c.state.EffectiveMaxProcesses = 1
	c.state.OriginalMaxProcesses = 4

	snap := sampler.Snapshot{CPUPercent: 40, MemoryPercent: 10, DiskPercent: 10}
	_, transitioned := c.reconcileWithSnapshot(snap, 1)
	require.True(t, transitioned)
	assert.False(t, c.State().Throttled)
	assert.Equal(t, 4, c.State().EffectiveMaxProcesses)
}

func TestEffectiveMaxNeverBelowOne(t *testing.T) {
	spec := testSpec()
	smp := sampler.New(t.TempDir(), time.Hour)
	c := New(spec, smp, 4)
	snap := sampler.Snapshot{CPUPercent: 99.99, MemoryPercent: 99.99, DiskPercent: 99.99}
	c.reconcileWithSnapshot(snap, 1)
	assert.GreaterOrEqual(t, c.State().EffectiveMaxProcesses, 1)
}
