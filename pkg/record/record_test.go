package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRecordEquality(t *testing.T) {
	assert.Equal(t, New(1, "Aitor"), New(1, "Aitor"))
	assert.NotEqual(t, New(1, "Aitor"), New(2, "Aitor"))
	assert.NotEqual(t, New(1, "Aitor"), New(1, "Ander"))
	assert.True(t, New(3, "Jon") == Record{ID: 3, Name: "Jon"})
	assert.Contains(t, New(1, "Aitor").String(), "Aitor")
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, r := range []Record{New(0, "Aitor"), New(34, "Itxaso"), New(7, ""), New(-3, "Neg"), New(1<<31, "Big"), New(-1<<40, "Small")} {
		got, err := Unmarshal(Marshal(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	buf := Marshal(New(5, "Gorka"))
	buf = protowire.AppendTag(buf, 9, protowire.BytesType)
	buf = protowire.AppendString(buf, "ignored")

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, New(5, "Gorka"), got)
}

func TestUnmarshalTruncated(t *testing.T) {
	buf := Marshal(New(5, "Gorka"))
	_, err := Unmarshal(buf[:len(buf)-2])
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	n := Names()
	require.Len(t, n, 35)
	assert.Equal(t, NameCount, len(n))
	assert.Equal(t, "Aitor", n[0])
	assert.Equal(t, "Ander", n[1])
	assert.Equal(t, "Gaizka", n[16])
	assert.Equal(t, "Itxaso", n[34])

	n[0] = "changed"
	assert.Equal(t, "Aitor", Names()[0])
}
