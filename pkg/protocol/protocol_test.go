package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandFraming(t *testing.T) {
	cmd := &Command{
		Type:   CmdPut,
		Region: "basque-names",
		Key:    "12",
		Args:   []string{"\x08\x0c\x12\x03Jon"},
		TTL:    90 * time.Second,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCommand(&buf, cmd))

	got, err := ReadCommand(&buf)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
	assert.Equal(t, "basque-names/12", got.RoutingKey())
}

func TestResponseFraming(t *testing.T) {
	responses := []*Response{
		{Type: RespOK},
		{Type: RespNil},
		{Type: RespError, Error: "boom"},
		{Type: RespUnknownRegion, Error: "unknown region: x"},
		{Type: RespBytes, Data: []byte{0, 1, 2, 255}},
		{Type: RespInt, Data: int64(-42)},
		{Type: RespArray, Data: []string{"a", "basque-names"}},
	}

	for _, resp := range responses {
		var buf bytes.Buffer
		require.NoError(t, WriteResponse(&buf, resp))

		got, err := ReadResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, resp, got)
	}
}

func TestResponseSerializeRejectsMismatchedData(t *testing.T) {
	_, err := (&Response{Type: RespInt, Data: "not an int"}).Serialize()
	assert.Error(t, err)

	_, err = (&Response{Type: RespBytes, Data: 7}).Serialize()
	assert.Error(t, err)
}

func TestDeserializeCommandTruncated(t *testing.T) {
	data, err := (&Command{Type: CmdGet, Region: "r", Key: "key"}).Serialize()
	require.NoError(t, err)

	for i := 1; i < len(data); i++ {
		_, err := DeserializeCommand(data[:i])
		assert.Error(t, err, "prefix of length %d should fail", i)
	}
	_, err = DeserializeCommand(nil)
	assert.Error(t, err)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)

	_, err := ReadCommand(bytes.NewReader(header))
	assert.ErrorContains(t, err, "too large")
}

func TestParseTextCommand(t *testing.T) {
	cmd, err := ParseTextCommand("put basque-names 0 Aitor 60")
	require.NoError(t, err)
	assert.Equal(t, &Command{Type: CmdPut, Region: "basque-names", Key: "0", Args: []string{"Aitor"}, TTL: time.Minute}, cmd)

	cmd, err = ParseTextCommand("GET basque-names 0")
	require.NoError(t, err)
	assert.Equal(t, CmdGet, cmd.Type)

	cmd, err = ParseTextCommand("REMOVE basque-names 0")
	require.NoError(t, err)
	assert.Equal(t, CmdRemove, cmd.Type)

	cmd, err = ParseTextCommand("ttl basque-names 0")
	require.NoError(t, err)
	assert.Equal(t, &Command{Type: CmdTTL, Region: "basque-names", Key: "0"}, cmd)
	assert.Equal(t, "TTL", cmd.Type.String())

	_, err = ParseTextCommand("TTL basque-names")
	assert.Error(t, err)

	cmd, err = ParseTextCommand("size basque-names")
	require.NoError(t, err)
	assert.Equal(t, CmdSize, cmd.Type)
	assert.Equal(t, "SIZE", cmd.Type.String())

	cmd, err = ParseTextCommand("CLEAR basque-names")
	require.NoError(t, err)
	assert.Equal(t, CmdClear, cmd.Type)

	cmd, err = ParseTextCommand("REGIONS")
	require.NoError(t, err)
	assert.Equal(t, CmdRegions, cmd.Type)

	cmd, err = ParseTextCommand("ping")
	require.NoError(t, err)
	assert.Equal(t, CmdPing, cmd.Type)

	for _, bad := range []string{"", "GET onlyregion", "PUT r k", "PUT r k v notanumber", "SIZE", "FLUSHALL"} {
		_, err := ParseTextCommand(bad)
		assert.Error(t, err, bad)
	}
}
