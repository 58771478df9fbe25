package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/submergedb/coldb/logger"
)

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := logger.NewLogrusLogger(&buf, "info")
	require.NoError(t, err)

	l.Debugf("hidden %d", 1)
	l.WithField("block", 3).Infof("wrote %d tracks", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "wrote 7 tracks")
	assert.Contains(t, out, "block=3")
}

func TestLogrusLoggerBadLevel(t *testing.T) {
	_, err := logger.NewLogrusLogger(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	l := logger.NopLogger.WithField("k", "v")
	assert.Equal(t, logger.NopLogger, l)
	l.Errorf("nothing %s", "happens")
}
