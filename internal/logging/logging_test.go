package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_ErrorPrefixAndDebugGate(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewConsole(&out, &errOut)
	c.SetNoColor(true)

	c.Error("boom %d", 1)
	assert.Equal(t, "Error: boom 1\n", errOut.String())

	c.Debug("hidden")
	assert.Empty(t, out.String())

	c.SetVerbose(true)
	c.Debug("shown")
	c.Success("done")
	assert.Equal(t, "[debug] shown\ndone\n", out.String())
}

func TestNew_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{JSON: true})
	l.Debug("dropped")
	l.Info("run finished", "processed", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "run finished", m["message"])
	assert.EqualValues(t, 3, m["processed"])

	buf.Reset()
	New(&buf, Options{JSON: true, Verbose: true}).Debug("kept")
	assert.Contains(t, buf.String(), "kept")
}
