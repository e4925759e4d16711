// Package command is a pure function turning a JobSpec and an input file
// into an argv vector, grounded on the flag-templating in the teacher's
// build/phases.go (executePhase's switch-built make argv) and
// original_source/orchestrator/process_manager.py's build_command (the
// {input_file}/{output_file} substring replacement this package ports
// unchanged).
package command

import (
	"path/filepath"
	"strings"

	"batchrun/config"
)

// shellTokens are the whole-token shell operators that force needsShell.
// Matching is whole-token only, so "--out>log" is not treated as redirection.
var shellTokens = map[string]bool{
	">":  true,
	">>": true,
	"|":  true,
	"<":  true,
}

// OutputPath computes an input file's output path: join(output_dir,
// basename(input_file) + output_suffix).
func OutputPath(spec *config.JobSpec, inputFile string) string {
	return filepath.Join(spec.OutputDir, filepath.Base(inputFile)+spec.OutputSuffix)
}

// Build turns spec and inputFile into argv plus a needsShell flag. No I/O,
// no errors: Build(spec, f) == Build(spec, f) bit-for-bit for any fixed spec
// and f.
func Build(spec *config.JobSpec, inputFile string) (argv []string, needsShell bool) {
	outputFile := OutputPath(spec, inputFile)

	argv = make([]string, 0, len(spec.Flags)+1)
	argv = append(argv, spec.BinaryPath)
	for _, flag := range spec.Flags {
		expanded := flag
		expanded = strings.ReplaceAll(expanded, "{input_file}", inputFile)
		expanded = strings.ReplaceAll(expanded, "{output_file}", outputFile)
		argv = append(argv, expanded)
		if shellTokens[expanded] {
			needsShell = true
		}
	}

	if needsShell {
		argv = []string{strings.Join(argv, " ")}
	}
	return argv, needsShell
}
