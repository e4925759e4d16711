package command

import (
	"testing"

	"batchrun/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() *config.JobSpec {
	return &config.JobSpec{
		BinaryPath:   "/bin/cp",
		Flags:        []string{"{input_file}", "{output_file}"},
		OutputDir:    "/var/out",
		OutputSuffix: ".bak",
	}
}

func TestBuild_SubstitutesPlaceholders(t *testing.T) {
	argv, needsShell := Build(testSpec(), "/data/a.txt")
	require.False(t, needsShell)
	assert.Equal(t, []string{"/bin/cp", "/data/a.txt", "/var/out/a.txt.bak"}, argv)
}

func TestBuild_PassesThroughFlagsWithoutPlaceholders(t *testing.T) {
	spec := testSpec()
	spec.Flags = append(spec.Flags, "--fast")
	argv, _ := Build(spec, "/data/a.txt")
	assert.Contains(t, argv, "--fast")
}

func TestBuild_DetectsWholeTokenRedirection(t *testing.T) {
	spec := testSpec()
	spec.Flags = []string{"{input_file}", ">", "{output_file}"}
	argv, needsShell := Build(spec, "/data/a.txt")
	require.True(t, needsShell)
	require.Len(t, argv, 1)
	assert.Equal(t, "/bin/cp /data/a.txt > /var/out/a.txt.bak", argv[0])
}

func TestBuild_DoesNotTreatEmbeddedOperatorAsShell(t *testing.T) {
	spec := testSpec()
	spec.Flags = []string{"--out>log"}
	_, needsShell := Build(spec, "/data/a.txt")
	assert.False(t, needsShell, "embedded operator in a larger token must not trigger shell mode")
}

func TestBuild_IsPure(t *testing.T) {
	spec := testSpec()
	argv1, shell1 := Build(spec, "/data/a.txt")
	argv2, shell2 := Build(spec, "/data/a.txt")
	assert.Equal(t, argv1, argv2)
	assert.Equal(t, shell1, shell2)
}

func TestOutputPath(t *testing.T) {
	spec := testSpec()
	assert.Equal(t, "/var/out/a.txt.bak", OutputPath(spec, "/data/a.txt"))
}
