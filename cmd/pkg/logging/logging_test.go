package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput(t *testing.T) {
	// GIVEN: записи перенаправлены в буфер
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	require.NoError(t, Configure("info", false))

	// WHEN
	GetLogger().GetLoggerWithField("run_id", "r-1").Info("import started")
	GetLogger().Debug("hidden")

	// THEN: запись попала в буфер один раз, debug отфильтрован уровнем
	out := buf.String()
	assert.Contains(t, out, "import started")
	assert.Contains(t, out, `"run_id":"r-1"`)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("import started")))
	assert.NotContains(t, out, "hidden")
}

func TestConfigure_UnknownLevel(t *testing.T) {
	err := Configure("loud", false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log level "loud"`)
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() { NewNop().GetLoggerWithField("k", "v").Error("dropped") })
}
