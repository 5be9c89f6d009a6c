package dslc

import (
	"testing"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestForceMergeSucceeded(t *testing.T) {
	tests := []struct {
		name string
		resp client.ForceMergeResponse
		want bool
	}{
		{
			name: "clean success",
			resp: client.ForceMergeResponse{TotalShards: 3, SuccessfulShards: 3, FailedShards: 0},
			want: true,
		},
		{
			name: "failed shards present despite matching totals",
			resp: client.ForceMergeResponse{TotalShards: 3, SuccessfulShards: 3, FailedShards: 1},
			want: false,
		},
		{
			name: "partial success",
			resp: client.ForceMergeResponse{TotalShards: 3, SuccessfulShards: 2, FailedShards: 0},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, forceMergeSucceeded(tc.resp))
		})
	}
}

func TestNextIndexName(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    string
	}{
		{"increments sequence", "logs-app-default-000003", "logs-app-default-000004"},
		{"pads width", "logs-app-default-000099", "logs-app-default-000100"},
		{"no recognized suffix", "logs-app-default", "logs-app-default-000001"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextIndexName(tc.current))
		})
	}
}

func TestSettingsMatch(t *testing.T) {
	want := targetMergePolicy

	assert.True(t, settingsMatch(want, want))
	assert.False(t, settingsMatch(types.IndexSettings{}, want))
}
