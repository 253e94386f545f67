package logger

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prevNoColor := color.NoColor
	color.NoColor = true
	SetOutput(buf)
	t.Cleanup(func() {
		SetOutput(color.Output)
		SetVerbose(false)
		color.NoColor = prevNoColor
	})
	return buf
}

func TestScopedLoggerPrefixesLines(t *testing.T) {
	buf := capture(t)

	ForTask(7).With("orders").Warn("⚠️  %d rows dropped", 2)

	assert.Contains(t, buf.String(), "[task 7] [orders] ⚠️  2 rows dropped")
}

func TestDebugRequiresVerbose(t *testing.T) {
	buf := capture(t)

	Debug("hidden")
	assert.Empty(t, buf.String())

	SetVerbose(true)
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
