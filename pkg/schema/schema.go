// Package schema registers the BasqueName wire schema with a remote cache cluster.
//
// Remote regions exchange records as protobuf messages. Before the first data
// operation a remote provider uploads the schema file to the cluster's metadata
// region, keyed by file name. Registration is an idempotent upsert followed by
// a read-back check; any failure leaves the provider unusable.
package schema

import (
	"context"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
)

// MetadataRegionName is the well-known region holding schema files.
const MetadataRegionName = "___protobuf_metadata"

// FileName is the name BasqueName's schema is registered under.
const FileName = "basquenames.proto"

// File is the protobuf definition matching record.Marshal.
const File = `// File name: basquenames.proto
syntax = "proto2";

package basquenames;

message BasqueName {
   optional int64 id = 1;
   optional string name = 2;
}
`

// Descriptor is a named schema file.
type Descriptor struct {
	FileName string
	Content  string
}

// BasqueNames returns the descriptor for the BasqueName record.
func BasqueNames() Descriptor {
	return Descriptor{FileName: FileName, Content: File}
}

// MetadataRegion is the string-keyed region a cluster keeps schema files in.
type MetadataRegion interface {
	PutMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, bool, error)
}

// Register uploads d to m and verifies the cluster now serves it.
// Every failure is reported as a ConfigurationError wrapping the cause.
func Register(ctx context.Context, m MetadataRegion, d Descriptor) error {
	if m == nil {
		return cacheerr.Configuration("schema %s: metadata region %s is not available", d.FileName, MetadataRegionName)
	}
	if d.FileName == "" || d.Content == "" {
		return cacheerr.Configuration("schema descriptor must have a file name and content")
	}

	if err := m.PutMetadata(ctx, d.FileName, d.Content); err != nil {
		return cacheerr.WrapConfiguration(err, "upload schema %s", d.FileName)
	}

	got, ok, err := m.GetMetadata(ctx, d.FileName)
	if err != nil {
		return cacheerr.WrapConfiguration(err, "verify schema %s", d.FileName)
	}
	if !ok || got != d.Content {
		return cacheerr.Configuration("schema %s was not stored by the cluster", d.FileName)
	}
	return nil
}
