package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/partiture/partiture/pkg/flow"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestPrintLifecycle(t *testing.T) {
	var buf bytes.Buffer
	printLifecycle(&buf, flow.SimpleInitiatingLifecycle)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(flow.SimpleInitiatingLifecycle))
	assert.Contains(t, lines[0], flow.Initialize.Name)
	assert.Contains(t, lines[len(lines)-1], flow.Done.Label)
}
