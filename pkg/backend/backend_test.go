package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cacheaside/pkg/record"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "0", Key(0))
	assert.Equal(t, "2147483648", Key(1<<31))
}

func TestDecode(t *testing.T) {
	rec, err := Decode(BasqueNamesRegion, 1<<31, record.Marshal(record.New(1<<31, "Big")))
	require.NoError(t, err)
	assert.Equal(t, record.New(1<<31, "Big"), rec)

	_, err = Decode(BasqueNamesRegion, 7, record.Marshal(record.New(8, "Mattin")))
	assert.ErrorContains(t, err, "holds id 8")

	_, err = Decode(BasqueNamesRegion, 7, []byte{0xff})
	assert.Error(t, err)
}
