package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
)

type mapRegion struct {
	data    map[string]string
	putErr  error
	getErr  error
	dropPut bool
	puts    int
}

func (m *mapRegion) PutMetadata(_ context.Context, key, value string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	if !m.dropPut {
		m.data[key] = value
	}
	return nil
}

func (m *mapRegion) GetMetadata(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func TestRegisterIsIdempotent(t *testing.T) {
	m := &mapRegion{data: map[string]string{}}

	require.NoError(t, Register(context.Background(), m, BasqueNames()))
	require.NoError(t, Register(context.Background(), m, BasqueNames()))

	assert.Equal(t, 2, m.puts)
	assert.Len(t, m.data, 1)
	assert.Equal(t, File, m.data[FileName])
}

func TestRegisterFailuresAreConfigurationErrors(t *testing.T) {
	cause := errors.New("connection refused")

	cases := map[string]MetadataRegion{
		"nil region":   nil,
		"put fails":    &mapRegion{data: map[string]string{}, putErr: cause},
		"get fails":    &mapRegion{data: map[string]string{}, getErr: cause},
		"not retained": &mapRegion{data: map[string]string{}, dropPut: true},
	}

	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			err := Register(context.Background(), m, BasqueNames())
			require.Error(t, err)
			assert.True(t, cacheerr.IsConfiguration(err))
		})
	}
}

func TestRegisterRejectsEmptyDescriptor(t *testing.T) {
	err := Register(context.Background(), &mapRegion{data: map[string]string{}}, Descriptor{})
	assert.True(t, cacheerr.IsConfiguration(err))
}
