// Package record defines the BasqueName record exchanged between the repository,
// its authoritative stores and the cache backends.
//
// Records are plain values: equality is structural (==) and they are never
// mutated in place. Remote backends carry them in protobuf wire format, see
// Marshal and Unmarshal.
package record

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the BasqueName message in SchemaFile.
const (
	fieldID   protowire.Number = 1
	fieldName protowire.Number = 2
)

// Record is a single named entry keyed by its natural id.
type Record struct {
	ID   int
	Name string
}

// New returns the record {id, name}.
func New(id int, name string) Record {
	return Record{ID: id, Name: name}
}

func (r Record) String() string {
	return fmt.Sprintf("BasqueName{id=%d, name=%s}", r.ID, r.Name)
}

// Marshal encodes r as a BasqueName protobuf message.
func Marshal(r Record) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(int64(r.ID)))
	buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, r.Name)
	return buf
}

// Unmarshal decodes a BasqueName protobuf message. Unknown fields are skipped.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Record{}, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldID && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return Record{}, fmt.Errorf("invalid id: %w", protowire.ParseError(m))
			}
			r.ID = int(int64(v))
			n = m
		case num == fieldName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return Record{}, fmt.Errorf("invalid name: %w", protowire.ParseError(m))
			}
			r.Name = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Record{}, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}
	return r, nil
}
