// Package config loads the JobSpec the core runs against from an INI file.
//
// Configuration loading and validation live outside the run loop: this
// package produces a validated JobSpec the loop can assume is already
// sound, so configuration defects surface at construction, never mid-run.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// JobSpec holds one batch job's binary, directories, and resource limits.
type JobSpec struct {
	BinaryPath string
	Flags      []string

	OutputDir    string
	OutputSuffix string

	CPUPercentMax    float64
	MemoryPercentMax float64
	DiskPercentMax   float64

	MaxProcessesCap int
	MaxRetries      int

	ThrottleThreshold         float64
	RecoveryThreshold         float64
	MonitoringIntervalSeconds float64
}

// defaults seeds the fields a JobSpec can reasonably run without: a 5s
// sampling interval, throttle/recovery thresholds of 0.9/0.7, and 3 retries.
func defaults() JobSpec {
	return JobSpec{
		MaxRetries:                3,
		ThrottleThreshold:         0.9,
		RecoveryThreshold:         0.7,
		MonitoringIntervalSeconds: 5.0,
	}
}

// Load reads an INI file shaped as:
//
//	[binary]
//	path = /usr/bin/convert
//	flags = {input_file},{output_file},--fast
//
//	[directories]
//	output_dir = /var/out
//	output_suffix = .done
//
//	[limits]
//	cpu_percent_max = 80
//	memory_percent_max = 80
//	disk_percent_max = 90
//	max_processes_cap = 8
//	max_retries = 3
//
//	[throttle]
//	throttle_threshold = 0.9
//	recovery_threshold = 0.7
//	monitoring_interval_seconds = 5
//
// flags is a comma-joined list so a single INI value can carry an ordered
// argv template; a literal comma inside a flag is not supported.
func Load(path string) (*JobSpec, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	spec := defaults()

	binary := cfg.Section("binary")
	spec.BinaryPath = binary.Key("path").String()
	if raw := binary.Key("flags").String(); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			spec.Flags = append(spec.Flags, strings.TrimSpace(f))
		}
	}

	dirs := cfg.Section("directories")
	spec.OutputDir = dirs.Key("output_dir").String()
	spec.OutputSuffix = dirs.Key("output_suffix").String()

	limits := cfg.Section("limits")
	spec.CPUPercentMax = limits.Key("cpu_percent_max").MustFloat64(spec.CPUPercentMax)
	spec.MemoryPercentMax = limits.Key("memory_percent_max").MustFloat64(spec.MemoryPercentMax)
	spec.DiskPercentMax = limits.Key("disk_percent_max").MustFloat64(spec.DiskPercentMax)
	spec.MaxProcessesCap = limits.Key("max_processes_cap").MustInt(spec.MaxProcessesCap)
	spec.MaxRetries = limits.Key("max_retries").MustInt(spec.MaxRetries)

	throttle := cfg.Section("throttle")
	spec.ThrottleThreshold = throttle.Key("throttle_threshold").MustFloat64(spec.ThrottleThreshold)
	spec.RecoveryThreshold = throttle.Key("recovery_threshold").MustFloat64(spec.RecoveryThreshold)
	spec.MonitoringIntervalSeconds = throttle.Key("monitoring_interval_seconds").MustFloat64(spec.MonitoringIntervalSeconds)

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate catches configuration defects at construction time, so the run
// loop may assume a JobSpec handed to it is already sound.
func (s *JobSpec) Validate() error {
	if s.BinaryPath == "" {
		return fmt.Errorf("config: binary.path is required")
	}
	if s.OutputDir == "" {
		return fmt.Errorf("config: directories.output_dir is required")
	}
	if s.MaxProcessesCap <= 0 {
		return fmt.Errorf("config: limits.max_processes_cap must be positive, got %d", s.MaxProcessesCap)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("config: limits.max_retries must be positive, got %d", s.MaxRetries)
	}
	for _, pct := range []struct {
		name string
		val  float64
	}{
		{"cpu_percent_max", s.CPUPercentMax},
		{"memory_percent_max", s.MemoryPercentMax},
		{"disk_percent_max", s.DiskPercentMax},
	} {
		if pct.val <= 0 || pct.val > 100 {
			return fmt.Errorf("config: limits.%s must be in (0,100], got %v", pct.name, pct.val)
		}
	}
	if s.RecoveryThreshold >= s.ThrottleThreshold {
		return fmt.Errorf("config: throttle.recovery_threshold (%v) must be less than throttle.throttle_threshold (%v)", s.RecoveryThreshold, s.ThrottleThreshold)
	}
	return nil
}

// ValidateAgainstManifest enforces the one configuration defect that can't
// be checked until the manifest is known: an empty output_suffix is only
// safe if output_dir differs from every input's directory, otherwise
// outputs would overwrite inputs in place.
func (s *JobSpec) ValidateAgainstManifest(inputDirs []string) error {
	if s.OutputSuffix != "" {
		return nil
	}
	for _, dir := range inputDirs {
		if dir == s.OutputDir {
			return fmt.Errorf("config: directories.output_suffix is empty and output_dir %q equals an input file's directory; outputs would overwrite inputs", s.OutputDir)
		}
	}
	return nil
}
