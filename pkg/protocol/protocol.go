// Package protocol implements the binary protocol spoken between the cachemir
// client and cache server.
//
// Every command addresses a named region. Values are opaque bytes; the remote
// backend stores protobuf-encoded records in them, and the metadata region
// stores schema files.
//
// Protocol Format:
//   - All messages are prefixed with a 4-byte length header (big-endian)
//   - Commands and responses are binary-encoded using variable-length encoding
//   - Strings and values are length-prefixed to handle arbitrary data
//
// Example usage:
//
//	cmd := &protocol.Command{
//		Type:   protocol.CmdPut,
//		Region: "basque-names",
//		Key:    "0",
//		Args:   []string{string(payload)},
//	}
//	err := protocol.WriteCommand(conn, cmd)
//
// The protocol supports the following command types:
//   - Entry operations: GET, PUT, REMOVE
//   - Region operations: SIZE, CLEAR, REGIONS
//   - Utility: PING
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Protocol constants
const (
	protocolHeaderSize = 4
	maxUint32Value     = 4294967295
	maxInt64Value      = 9223372036854775807
	// MaxFrameSize bounds a single command or response frame.
	MaxFrameSize = 1024 * 1024
)

// CommandType represents the type of command being executed.
type CommandType uint8

// Command type constants define all supported region operations.
const (
	CmdGet     CommandType = iota // GET region key - retrieve a value
	CmdPut                        // PUT region key value [ttl] - store a value
	CmdRemove                     // REMOVE region key - delete a key
	CmdSize                       // SIZE region - count live entries
	CmdClear                      // CLEAR region - drop all entries
	CmdRegions                    // REGIONS - list hosted regions
	CmdPing                       // PING - connectivity test
	CmdTTL                        // TTL region key - remaining seconds, -1 if persistent, -2 if absent
)

var commandNames = map[CommandType]string{
	CmdGet:     "GET",
	CmdPut:     "PUT",
	CmdRemove:  "REMOVE",
	CmdSize:    "SIZE",
	CmdClear:   "CLEAR",
	CmdRegions: "REGIONS",
	CmdPing:    "PING",
	CmdTTL:     "TTL",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return "CMD(" + strconv.Itoa(int(t)) + ")"
}

// ResponseType represents the type of response from the server.
type ResponseType uint8

// Response type constants define the possible server response formats.
const (
	RespOK            ResponseType = iota // Simple OK response
	RespError                             // Error message response
	RespBytes                             // Opaque value response
	RespInt                               // Integer data response
	RespArray                             // Array of strings response
	RespNil                               // Key not present
	RespUnknownRegion                     // Addressed region is not hosted
)

// Command represents a client request to the cache server.
//
// Example:
//
//	cmd := &Command{
//		Type:   CmdGet,
//		Region: "basque-names",
//		Key:    "12",
//	}
type Command struct {
	Region string        // The target region
	Key    string        // The target key for the operation
	TTL    time.Duration // Optional time-to-live for PUT
	Type   CommandType   // The operation to perform
	Args   []string      // Command arguments (values)
}

// RoutingKey is the key the client hashes to pick a node.
func (c *Command) RoutingKey() string {
	return c.Region + "/" + c.Key
}

// Response represents a server response to a client command.
// The response type determines how the Data field should be interpreted:
//   - RespBytes: []byte
//   - RespInt: int64
//   - RespArray: []string
type Response struct {
	Data  interface{}  // The response payload
	Error string       // Error message if Type is RespError or RespUnknownRegion
	Type  ResponseType // The type of response data
}

// Serialize converts a Command into its binary representation.
// The format is:
//   - 1 byte: command type
//   - varint: region length + region bytes
//   - varint: key length + key bytes
//   - varint: args count + (varint: arg length + arg bytes) for each arg
//   - varint: TTL in seconds
func (c *Command) Serialize() ([]byte, error) {
	var buf []byte

	buf = append(buf, byte(c.Type))
	buf = appendString(buf, c.Region)
	buf = appendString(buf, c.Key)

	buf = binary.AppendUvarint(buf, uint64(len(c.Args)))
	for _, arg := range c.Args {
		buf = appendString(buf, arg)
	}

	buf = binary.AppendUvarint(buf, uint64(c.TTL/time.Second))

	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// DeserializeCommand reconstructs a Command from its binary representation.
// This is the inverse operation of Command.Serialize().
//
// Returns:
//   - Reconstructed Command object
//   - Error if deserialization fails or data is corrupted
func DeserializeCommand(data []byte) (*Command, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty command data")
	}

	cmd := &Command{}
	offset := 0

	cmd.Type = CommandType(data[offset])
	offset++

	var err error
	cmd.Region, offset, err = deserializeString(data, offset, "region")
	if err != nil {
		return nil, err
	}

	cmd.Key, offset, err = deserializeString(data, offset, "key")
	if err != nil {
		return nil, err
	}

	cmd.Args, offset, err = deserializeStringSlice(data, offset)
	if err != nil {
		return nil, err
	}

	cmd.TTL, err = deserializeTTL(data, offset)
	if err != nil {
		return nil, err
	}

	return cmd, nil
}

func deserializeString(data []byte, offset int, fieldName string) (str string, newOffset int, err error) {
	if offset >= len(data) {
		err = fmt.Errorf("missing %s", fieldName)
		return
	}
	strLen, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		err = fmt.Errorf("invalid %s length", fieldName)
		return
	}
	if strLen > uint64(len(data)) || strLen > uint64(^uint(0)>>1) {
		err = fmt.Errorf("%s length too large", fieldName)
		return
	}
	offset += n

	strLenInt := int(strLen)
	if offset+strLenInt > len(data) {
		err = fmt.Errorf("%s data truncated", fieldName)
		return
	}
	str = string(data[offset : offset+strLenInt])
	newOffset = offset + strLenInt
	return
}

func deserializeStringSlice(data []byte, offset int) (args []string, newOffset int, err error) {
	if offset >= len(data) {
		err = fmt.Errorf("missing args count")
		return
	}
	argsCount, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		err = fmt.Errorf("invalid args count")
		return
	}
	if argsCount > uint64(len(data)) {
		err = fmt.Errorf("args count too large")
		return
	}
	offset += n

	args = make([]string, argsCount)
	for i := uint64(0); i < argsCount; i++ {
		var arg string
		arg, offset, err = deserializeString(data, offset, "arg")
		if err != nil {
			return
		}
		args[i] = arg
	}

	newOffset = offset
	return
}

func deserializeTTL(data []byte, offset int) (time.Duration, error) {
	if offset >= len(data) {
		return 0, fmt.Errorf("missing TTL")
	}
	ttlSeconds, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		return 0, fmt.Errorf("invalid TTL")
	}
	if ttlSeconds > uint64(maxInt64Value)/uint64(time.Second) {
		return 0, fmt.Errorf("TTL too large")
	}
	return time.Duration(int64(ttlSeconds)) * time.Second, nil
}

// Serialize converts a Response into its binary representation.
// The format varies by response type:
//   - RespOK/RespNil: just the type byte
//   - RespError/RespUnknownRegion: type + varint length + message bytes
//   - RespBytes: type + varint length + value bytes
//   - RespInt: type + varint-encoded signed integer
//   - RespArray: type + varint count + (varint length + bytes) for each item
func (r *Response) Serialize() ([]byte, error) {
	var buf []byte

	buf = append(buf, byte(r.Type))

	switch r.Type {
	case RespOK, RespNil:
		return buf, nil
	case RespError, RespUnknownRegion:
		buf = appendString(buf, r.Error)
	case RespBytes:
		b, ok := r.Data.([]byte)
		if !ok {
			return nil, fmt.Errorf("bytes response carries %T", r.Data)
		}
		buf = binary.AppendUvarint(buf, uint64(len(b)))
		buf = append(buf, b...)
	case RespInt:
		num, ok := r.Data.(int64)
		if !ok {
			return nil, fmt.Errorf("int response carries %T", r.Data)
		}
		buf = binary.AppendVarint(buf, num)
	case RespArray:
		arr, ok := r.Data.([]string)
		if !ok {
			return nil, fmt.Errorf("array response carries %T", r.Data)
		}
		buf = binary.AppendUvarint(buf, uint64(len(arr)))
		for _, item := range arr {
			buf = appendString(buf, item)
		}
	default:
		return nil, fmt.Errorf("unknown response type: %d", r.Type)
	}

	return buf, nil
}

// DeserializeResponse reconstructs a Response from its binary representation.
// This is the inverse operation of Response.Serialize().
func DeserializeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response data")
	}

	resp := &Response{Type: ResponseType(data[0])}
	offset := 1

	switch resp.Type {
	case RespOK, RespNil:
		return resp, nil
	case RespError, RespUnknownRegion:
		msg, _, err := deserializeString(data, offset, "error")
		if err != nil {
			return nil, err
		}
		resp.Error = msg
	case RespBytes:
		str, _, err := deserializeString(data, offset, "value")
		if err != nil {
			return nil, err
		}
		resp.Data = []byte(str)
	case RespInt:
		num, n := binary.Varint(data[offset:])
		if n <= 0 {
			return nil, fmt.Errorf("invalid integer")
		}
		resp.Data = num
	case RespArray:
		arr, _, err := deserializeStringSlice(data, offset)
		if err != nil {
			return nil, err
		}
		resp.Data = arr
	default:
		return nil, fmt.Errorf("unknown response type: %d", resp.Type)
	}

	return resp, nil
}

// ParseTextCommand parses a space-separated text command into a Command.
// It backs the debugging CLI; values containing spaces are not supported.
//
// Example:
//
//	cmd, err := protocol.ParseTextCommand("PUT basque-names 0 Aitor 60")
//	// cmd.Type == CmdPut, cmd.Region == "basque-names", cmd.Key == "0",
//	// cmd.Args == ["Aitor"], cmd.TTL == 60s
func ParseTextCommand(line string) (*Command, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name := strings.ToUpper(parts[0])
	args := parts[1:]

	switch name {
	case "GET", "REMOVE", "TTL":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s requires a region and a key", name)
		}
		cmdType := CmdGet
		switch name {
		case "REMOVE":
			cmdType = CmdRemove
		case "TTL":
			cmdType = CmdTTL
		}
		return &Command{Type: cmdType, Region: args[0], Key: args[1]}, nil
	case "PUT":
		return parsePutCommand(args)
	case "SIZE", "CLEAR":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s requires a region", name)
		}
		cmdType := CmdSize
		if name == "CLEAR" {
			cmdType = CmdClear
		}
		return &Command{Type: cmdType, Region: args[0]}, nil
	case "REGIONS":
		return &Command{Type: CmdRegions}, nil
	case "PING":
		return &Command{Type: CmdPing}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", name)
	}
}

func parsePutCommand(args []string) (*Command, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, fmt.Errorf("PUT requires a region, a key, a value and an optional ttl")
	}

	cmd := &Command{
		Type:   CmdPut,
		Region: args[0],
		Key:    args[1],
		Args:   []string{args[2]},
	}

	if len(args) == 4 {
		ttl, err := strconv.Atoi(args[3])
		if err != nil || ttl < 0 {
			return nil, fmt.Errorf("invalid ttl: %s", args[3])
		}
		cmd.TTL = time.Duration(ttl) * time.Second
	}

	return cmd, nil
}

// WriteResponse writes a Response to w with a 4-byte length header.
func WriteResponse(w io.Writer, resp *Response) error {
	data, err := resp.Serialize()
	if err != nil {
		return err
	}
	return writeFrame(w, data)
}

// ReadResponse reads one framed Response from r.
func ReadResponse(r io.Reader) (*Response, error) {
	data, err := readFrame(r, "response")
	if err != nil {
		return nil, err
	}
	return DeserializeResponse(data)
}

// WriteCommand writes a Command to w with a 4-byte length header.
//
// Example:
//
//	cmd := &Command{Type: CmdSize, Region: "basque-names"}
//	err := protocol.WriteCommand(conn, cmd)
func WriteCommand(w io.Writer, cmd *Command) error {
	data, err := cmd.Serialize()
	if err != nil {
		return err
	}
	return writeFrame(w, data)
}

// ReadCommand reads one framed Command from r.
// Frames larger than MaxFrameSize are rejected before allocation.
func ReadCommand(r io.Reader) (*Command, error) {
	data, err := readFrame(r, "command")
	if err != nil {
		return nil, err
	}
	return DeserializeCommand(data)
}

func writeFrame(w io.Writer, data []byte) error {
	dataLen := len(data)
	if uint64(dataLen) > maxUint32Value || dataLen > MaxFrameSize {
		return fmt.Errorf("data too large: %d bytes", dataLen)
	}

	frame := make([]byte, protocolHeaderSize, protocolHeaderSize+dataLen)
	binary.BigEndian.PutUint32(frame, uint32(dataLen))
	frame = append(frame, data...)

	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader, what string) ([]byte, error) {
	lengthBuf := make([]byte, protocolHeaderSize)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%s too large: %d bytes", what, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
