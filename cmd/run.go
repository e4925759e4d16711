package cmd

import (
	"os"
	"path/filepath"

	"batchrun/calibrate"
	"batchrun/config"
	"batchrun/logging"
	"batchrun/manifest"
	"batchrun/workloop"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	manifestPath  string
	logLevel      string
	skipCalibrate bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "process every file in the manifest through the configured binary",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the INI job configuration (required)")
	runCmd.Flags().StringVar(&manifestPath, "manifest", "", "path to the newline-delimited input file manifest (required)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	runCmd.Flags().BoolVar(&skipCalibrate, "skip-calibration", false, "use the noop calibrator instead of probing")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("manifest")
}

func runRun(_ *cobra.Command, _ []string) error {
	spec, err := config.Load(configPath)
	if err != nil {
		return err
	}

	files, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(files))
	for _, f := range files {
		dirs = append(dirs, filepath.Dir(f))
	}
	if err := spec.ValidateAgainstManifest(dirs); err != nil {
		return err
	}

	log := logging.New(logLevel, os.Stderr)
	logging.LogHostInfo(log)

	loop := workloop.New(spec, log, calibrate.Noop{})
	if !skipCalibrate {
		loop.Calibrator = calibrate.NewProbe(spec, loop.Sampler, loop.Supervisor, log)
	}

	code := loop.Run(files)
	os.Exit(code)
	return nil
}
