package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name" yaml:"name"`
	Items []string `json:"items" yaml:"items"`
}

func TestDecodeJSONAndYAML(t *testing.T) {
	var fromJSON, fromYAML sample

	require.NoError(t, Decode([]byte(`{"name":"a","items":["x","y"]}`), ".json", &fromJSON))
	require.NoError(t, Decode([]byte("name: a\nitems: [x, y]\n"), ".yaml", &fromYAML))

	assert.Equal(t, fromJSON, fromYAML)
	assert.Equal(t, []string{"x", "y"}, fromJSON.Items)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var s sample
	assert.Error(t, Decode([]byte(`{"name":"a","bogus":1}`), ".json", &s))
	assert.Error(t, Decode([]byte("name: a\nbogus: 1\n"), ".yml", &s))
}

func TestDecodeFileMissing(t *testing.T) {
	var s sample
	err := DecodeFile(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
