package cacheerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		is    func(error) bool
		label string
	}{
		{"configuration", Configuration("region %q missing", "basque-names"), IsConfiguration, "configuration"},
		{"not found", NotFound("id %d", 40), IsNotFound, "not_found"},
		{"invalid argument", InvalidArgument("id %d", -1), IsInvalidArgument, "invalid_argument"},
		{"network", Network(errors.New("connection refused"), "get"), IsNetwork, "network"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("find by id: %w", tc.err)
			assert.True(t, tc.is(tc.err))
			assert.True(t, tc.is(wrapped))
			assert.Equal(t, tc.label, Kind(wrapped))
		})
	}
}

func TestNetworkNilCause(t *testing.T) {
	assert.NoError(t, Network(nil, "get"))
}

func TestWrapConfigurationKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WrapConfiguration(cause, "metadata region unreachable")

	assert.True(t, IsConfiguration(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNetwork(err))
	assert.Equal(t, "unknown", Kind(errors.New("plain")))
}
