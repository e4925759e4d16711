package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew_FallsBackToInfoOnUnknownLevel(t *testing.T) {
	log := New("not-a-level", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNew_ParsesKnownLevel(t *testing.T) {
	log := New("debug", &bytes.Buffer{})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestTally_LogsCompletedAndFailed(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", &buf)
	Tally(log, 3, 1)
	out := buf.String()
	assert.Contains(t, out, "completed=3")
	assert.Contains(t, out, "failed=1")
}

func TestLogHostInfo_LogsArchAndCPUCount(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", &buf)
	LogHostInfo(log)
	assert.Contains(t, buf.String(), "arch=")
	assert.Contains(t, buf.String(), "ncpus=")
}
