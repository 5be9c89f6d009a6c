package dslc

import (
	"time"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/types"
)

// defaultMaxAge is the rollover condition DSLC applies automatically when
// a stream's lifecycle does not shorten it via retention.
const defaultMaxAge = 30 * 24 * time.Hour

// RolloverRequestBuilder produces the rollover request for one data stream,
// merging its configured conditions with the automatic max-age default.
type RolloverRequestBuilder struct{}

// Build returns the RolloverRequest for ds: its configured conditions
// merged with the max-age condition that governs it (the stream's
// configured retention when it is set and shorter than the automatic
// default, otherwise the default itself). newIndexName names the index the
// target node should roll over to.
func (RolloverRequestBuilder) Build(ds *types.DataStream, newIndexName string) client.RolloverRequest {
	return client.RolloverRequest{
		StreamName:   ds.Name,
		NewIndexName: newIndexName,
		Conditions:   client.RolloverConditions{MaxAge: maxAgeFor(ds)},
	}
}

// maxAgeFor returns the effective max-age condition for ds: the default
// unless the stream's retention is configured and shorter, in which case
// retention wins.
func maxAgeFor(ds *types.DataStream) time.Duration {
	if ds.Lifecycle != nil && ds.Lifecycle.RetentionSet && ds.Lifecycle.DataRetention < defaultMaxAge {
		return ds.Lifecycle.DataRetention
	}
	return defaultMaxAge
}
