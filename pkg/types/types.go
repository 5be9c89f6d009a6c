package types

import (
	"math"
	"time"
)

// DataStream is a named collection of backing indices with a distinguished
// write index (the last entry in Indices).
type DataStream struct {
	Name      string
	Indices   []*BackingIndex
	Lifecycle *LifecycleSpec
	CreatedAt time.Time
}

// WriteIndex returns the current write index, or nil if the stream has none.
func (d *DataStream) WriteIndex() *BackingIndex {
	if len(d.Indices) == 0 {
		return nil
	}
	return d.Indices[len(d.Indices)-1]
}

// LifecycleSpec is the user-configured lifecycle for a data stream. A nil
// *LifecycleSpec on a DataStream means the stream is not managed at all.
type LifecycleSpec struct {
	// DataRetention is how long a backing index may live, counted from its
	// creation, before it is deleted.
	DataRetention time.Duration
	// RetentionSet reports whether DataRetention was explicitly configured.
	// A lifecycle with RetentionSet=false never deletes indices for age.
	RetentionSet bool
}

// BackingIndex is a single physical index underlying a DataStream.
type BackingIndex struct {
	Name         string
	CreatedAt    time.Time
	Settings     IndexSettings
	RolloverInfo []RolloverCondition
	CustomMeta   map[string]map[string]string
}

// Age returns how long ago the index was created, relative to now.
func (b *BackingIndex) Age(now time.Time) time.Duration {
	return now.Sub(b.CreatedAt)
}

// MetaNamespaceLifecycle is the custom-metadata namespace recognized by DSLC.
const MetaNamespaceLifecycle = "data_stream_lifecycle"

// MetaKeyForceMergeCompletedTimestamp is the only recognized key within
// MetaNamespaceLifecycle: a decimal string of epoch milliseconds.
const MetaKeyForceMergeCompletedTimestamp = "force_merge_completed_timestamp"

// IndexSettings is the subset of an index's settings DSLC inspects.
type IndexSettings struct {
	// ForeignLifecyclePolicy, when non-empty, names a policy managed by an
	// external legacy lifecycle manager. Indices carrying one are never
	// touched by DSLC.
	ForeignLifecyclePolicy string
	MergePolicyFloorSegment int64 // bytes
	MergePolicyMergeFactor  int
}

// RolloverCondition records one satisfied rollover condition and when it
// was observed true.
type RolloverCondition struct {
	Name string
	Met  time.Time
}

// TombstoneGraveyard is the cluster-level record of recently deleted index
// names, consulted by ErrorStore.Reconcile.
type TombstoneGraveyard map[string]time.Time

// Contains reports whether name was recorded as deleted.
func (g TombstoneGraveyard) Contains(name string) bool {
	_, ok := g[name]
	return ok
}

// ClusterStateSnapshot is an immutable, copied-out view of the cluster
// metadata relevant to DSLC and AAS. Callers must never retain a live
// reference into the manager's store: every field here is a defensive copy.
type ClusterStateSnapshot struct {
	DataStreams []*DataStream
	Graveyard   TombstoneGraveyard
	Deployments []*DeploymentAssignment
}

// DataStreamByName returns the stream with the given name, or nil.
func (s *ClusterStateSnapshot) DataStreamByName(name string) *DataStream {
	for _, ds := range s.DataStreams {
		if ds.Name == name {
			return ds
		}
	}
	return nil
}

// DeploymentAssignment is the cluster's view of one inference model
// deployment: its target allocation bounds and whether adaptive allocation
// is enabled for it.
type DeploymentAssignment struct {
	DeploymentID           string
	NodeIDs                []string
	TotalTargetAllocations int
	AdaptiveAllocations    *AdaptiveAllocationsConfig
}

// AdaptiveAllocationsConfig is the user-configured bounds for one
// deployment's scaler. A nil value (or Enabled=false) means AAS should not
// manage the deployment at all.
type AdaptiveAllocationsConfig struct {
	Enabled        bool
	MinAllocations int // 0 means unbounded below
	MaxAllocations int // 0 means unbounded above
}

// Stats is one (deployment, node) inference statistics snapshot.
//
// AvgInferenceTime is stored in seconds. SuccessCount*AvgInferenceTime is
// the implied TotalInferenceTime invariant relied on by Add/Sub.
type Stats struct {
	SuccessCount     int64
	PendingCount     int64
	FailedCount      int64 // errors + timeouts + rejections
	AvgInferenceTime float64
}

// totalInferenceTime recovers the implied total from SuccessCount and
// AvgInferenceTime.
func (s Stats) totalInferenceTime() float64 {
	return float64(s.SuccessCount) * s.AvgInferenceTime
}

// Add combines s with other, recomputing AvgInferenceTime from the merged
// total. Yields NaN in AvgInferenceTime when the merged SuccessCount is
// zero.
func (s Stats) Add(other Stats) Stats {
	total := s.totalInferenceTime() + other.totalInferenceTime()
	successCount := s.SuccessCount + other.SuccessCount
	return Stats{
		SuccessCount:     successCount,
		PendingCount:     s.PendingCount + other.PendingCount,
		FailedCount:      s.FailedCount + other.FailedCount,
		AvgInferenceTime: total / float64(successCount),
	}
}

// Sub returns the delta of s relative to prior, the snapshot last observed.
// It is monotone-safe only when s's counters are non-decreasing relative to
// prior; if any counter decreased (a counter reset on the observed node),
// prior is treated as absent and s is returned unchanged.
func (s Stats) Sub(prior Stats) Stats {
	if s.SuccessCount < prior.SuccessCount ||
		s.PendingCount < prior.PendingCount ||
		s.FailedCount < prior.FailedCount {
		return s
	}

	successCount := s.SuccessCount - prior.SuccessCount
	delta := Stats{
		SuccessCount: successCount,
		PendingCount: s.PendingCount - prior.PendingCount,
		FailedCount:  s.FailedCount - prior.FailedCount,
	}
	if successCount <= 0 {
		delta.AvgInferenceTime = math.NaN()
		return delta
	}
	delta.AvgInferenceTime = (s.totalInferenceTime() - prior.totalInferenceTime()) / float64(successCount)
	return delta
}
