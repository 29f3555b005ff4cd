package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPassThrough(t *testing.T) {
	ev, err := parseEvent(`{"kind":"pass","name":"adds numbers","file":"/tmp/a.test.js","duration_ms":1.2}`)
	require.NoError(t, err)
	assert.Equal(t, "pass", ev.Kind)
	assert.Equal(t, "adds numbers", ev.Name)
	assert.True(t, ev.hasDetails())
}

func TestParseEventFailWithExpectedActual(t *testing.T) {
	ev, err := parseEvent(`{"kind":"fail","name":"n","file":"f","message":"boom","expected":1,"actual":2,"stack":"at f (x.js:1:1)"}`)
	require.NoError(t, err)
	assert.Equal(t, "boom", ev.Message)
	assert.Equal(t, "1", string(ev.Expected))
	assert.Equal(t, "2", string(ev.Actual))
}

func TestParseEventRejectsInvalidJSON(t *testing.T) {
	_, err := parseEvent(`not json`)
	assert.Error(t, err)
}

func TestHasDetailsFalseForDiagnostic(t *testing.T) {
	ev, err := parseEvent(`{"kind":"diagnostic","message":"tests 3"}`)
	require.NoError(t, err)
	assert.False(t, ev.hasDetails())
}
