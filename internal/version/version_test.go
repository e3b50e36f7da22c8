package version

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFormat(t *testing.T) {
	i := Info{Name: "catresize", Version: "v1.2.3", Commit: "0123456789abcdef", GoVersion: "go1.24.0", Platform: "linux/amd64"}

	text, err := i.Format("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "catresize v1.2.3\n"))
	assert.Contains(t, text, "0123456789ab\n")

	js, err := i.Format("json")
	require.NoError(t, err)
	var got Info
	require.NoError(t, json.Unmarshal([]byte(js), &got))
	assert.Equal(t, i, got)

	ys, err := i.Format("YAML")
	require.NoError(t, err)
	got = Info{}
	require.NoError(t, yaml.Unmarshal([]byte(ys), &got))
	assert.Equal(t, i, got)

	_, err = i.Format("xml")
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	i := Get()
	assert.Equal(t, "catresize", i.Name)
	assert.NotEmpty(t, i.Version)
	assert.NotEmpty(t, i.Commit)
	assert.Equal(t, "catresize/"+i.Version, i.UserAgent())
}
