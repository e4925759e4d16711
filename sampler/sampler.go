// Package sampler is a stateless observer of host-global and per-child
// resource counters, backed by github.com/shirou/gopsutil (grounded on
// gravwell-gravwell's client/types/host.go and ingest/log/utils.go, both
// importing gopsutil's load/host packages — the pack's only repo exercising
// real OS resource counters). The debounced refresh loop generalizes the
// 1Hz-ticker shape of the teacher's stats/collector.go.
package sampler

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// Snapshot holds host-global CPU/memory/disk utilization, all percentages
// in [0,100].
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// childState is the per-registered-pid bookkeeping the sampler keeps. It is
// never a source of liveness truth: the supervisor independently detects
// termination, the sampler only drops stale entries it can no longer read.
type childState struct {
	proc       *process.Process
	lastCPUPct float64
	lastRSS    uint64
}

// Sampler observes host and per-child resource usage. outputDir is the
// directory whose backing volume disk usage is measured.
type Sampler struct {
	outputDir string
	interval  time.Duration

	mu       sync.Mutex
	children map[string]*childState // keyed by InputFile

	lastRefresh time.Time
	lastSnap    Snapshot
	haveSnap    bool
}

// New constructs a Sampler. interval is the refresh debounce window.
func New(outputDir string, interval time.Duration) *Sampler {
	return &Sampler{
		outputDir: outputDir,
		interval:  interval,
		children:  make(map[string]*childState),
	}
}

// HostSnapshot returns the current host-global CPU/memory/disk utilization.
// It always samples live; callers wanting the debounced cadence should go
// through Refresh and GetSnapshot instead.
func (s *Sampler) HostSnapshot() Snapshot {
	var snap Snapshot

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage(s.outputDir); err == nil {
		snap.DiskPercent = du.UsedPercent
	}
	return snap
}

// Register begins tracking per-child counters for pid under inputFile.
func (s *Sampler) Register(inputFile string, pid int32) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		// The process may have already exited; it is simply not tracked,
		// and the Supervisor is the source of liveness truth.
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[inputFile] = &childState{proc: proc}
}

// Unregister stops tracking inputFile.
func (s *Sampler) Unregister(inputFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.children, inputFile)
}

// Refresh re-reads per-child counters and the host snapshot, but is a no-op
// if called within the monitoring interval of its last execution. It
// silently drops any pid that can no longer be read.
func (s *Sampler) Refresh() {
	s.refresh(false)
}

// ForceRefresh re-reads per-child counters and the host snapshot
// unconditionally, bypassing the debounce window. Calibration needs every
// poll in its stabilization loop to be a genuinely fresh sample; Refresh's
// debounce (tuned for the main work loop's monitoring cadence) would
// otherwise return the same cached reading for the whole probe.
func (s *Sampler) ForceRefresh() {
	s.refresh(true)
}

func (s *Sampler) refresh(force bool) {
	s.mu.Lock()
	if !force && s.haveSnap && time.Since(s.lastRefresh) < s.interval {
		s.mu.Unlock()
		return
	}
	children := make(map[string]*childState, len(s.children))
	for k, v := range s.children {
		children[k] = v
	}
	s.mu.Unlock()

	snap := s.HostSnapshot()

	stale := make([]string, 0)
	for inputFile, cs := range children {
		running, err := cs.proc.IsRunning()
		if err != nil || !running {
			stale = append(stale, inputFile)
			continue
		}
		if pct, err := cs.proc.CPUPercent(); err == nil {
			cs.lastCPUPct = pct
		} else {
			stale = append(stale, inputFile)
			continue
		}
		if mi, err := cs.proc.MemoryInfo(); err == nil && mi != nil {
			cs.lastRSS = mi.RSS
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inputFile := range stale {
		delete(s.children, inputFile)
	}
	s.lastSnap = snap
	s.haveSnap = true
	s.lastRefresh = time.Now()
}

// GetSnapshot returns the most recent snapshot produced by Refresh, and
// whether one has ever been taken.
func (s *Sampler) GetSnapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnap, s.haveSnap
}

// ChildUsage returns the last-observed CPU percent and RSS bytes for a
// registered input file.
func (s *Sampler) ChildUsage(inputFile string) (cpuPct float64, rssBytes uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, found := s.children[inputFile]
	if !found {
		return 0, 0, false
	}
	return cs.lastCPUPct, cs.lastRSS, true
}

// ActiveCount returns the number of pids currently registered.
func (s *Sampler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}
