package netdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIndexLoopback(t *testing.T) {
	idx, err := LookupIndex("lo")
	require.NoError(t, err)
	assert.Positive(t, idx)
}

func TestLookupIndexUnknown(t *testing.T) {
	_, err := LookupIndex("definitely-not-a-nic0")
	assert.Error(t, err)
}

func TestInterfacesContainLoopback(t *testing.T) {
	ifis, err := Interfaces()
	require.NoError(t, err)
	require.NotEmpty(t, ifis)

	found := false
	for _, ifi := range ifis {
		if ifi.Name == "lo" {
			found = true
			assert.Positive(t, ifi.Index)
		}
	}
	assert.True(t, found, "loopback interface not enumerated")
}
