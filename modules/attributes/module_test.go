package attributes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeIsEmptyButValid(t *testing.T) {
	t.Parallel()

	var r Record
	assert.False(t, r.Validate(), "a nil attribute map is invalid")

	r.Initialize()
	assert.True(t, r.Validate())
	assert.Empty(t, r.Values)
}

func TestGetSet(t *testing.T) {
	t.Parallel()

	var r Record
	r.Initialize()

	assert.Equal(t, 1.0, r.Get("walkspeed", 1.0))
	r.Set("walkspeed", 1.25)
	assert.Equal(t, 1.25, r.Get("walkspeed", 1.0))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	src := Record{Values: map[string]float64{"walkspeed": 1.25, "miningspeed": 0.5}}
	data, err := src.Serialize()
	require.NoError(t, err)

	var dst Record
	require.NoError(t, dst.Deserialize(data))
	assert.Equal(t, src, dst)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	t.Parallel()

	r := Record{Values: map[string]float64{"ok": 2}}
	assert.True(t, r.Validate())

	r.Values["bad"] = math.NaN()
	assert.False(t, r.Validate())

	r.Values["bad"] = math.Inf(1)
	assert.False(t, r.Validate())
}
