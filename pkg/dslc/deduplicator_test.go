package dslc

import (
	"sync"
	"testing"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/stretchr/testify/assert"
)

func TestForceMergeRequestKeyEquality(t *testing.T) {
	a := client.ForceMergeRequest{
		Indices:        []string{"idx-2", "idx-1"},
		MaxNumSegments: 1,
		RequestID:      "req-a",
	}
	b := client.ForceMergeRequest{
		Indices:        []string{"idx-1", "idx-2"},
		MaxNumSegments: 1,
		RequestID:      "req-a",
	}

	assert.Equal(t, NewForceMergeRequestKey(a), NewForceMergeRequestKey(b))
}

func TestForceMergeRequestKeyIgnoresParentTaskID(t *testing.T) {
	// ParentTaskID lives only on the response, never on the request, so it
	// cannot influence the key regardless of how the response turns out.
	a := client.ForceMergeRequest{Indices: []string{"idx-1"}, MaxNumSegments: 1, RequestID: "req-a"}
	b := client.ForceMergeRequest{Indices: []string{"idx-1"}, MaxNumSegments: 1, RequestID: "req-a"}

	assert.Equal(t, NewForceMergeRequestKey(a), NewForceMergeRequestKey(b))
}

func TestForceMergeRequestKeyInequality(t *testing.T) {
	a := client.ForceMergeRequest{Indices: []string{"idx-1"}, MaxNumSegments: 1, RequestID: "req-a"}
	b := client.ForceMergeRequest{Indices: []string{"idx-1"}, MaxNumSegments: 5, RequestID: "req-a"}

	assert.NotEqual(t, NewForceMergeRequestKey(a), NewForceMergeRequestKey(b))
}

func TestForceMergeRequestKeyInequalityOnRequestID(t *testing.T) {
	a := client.ForceMergeRequest{Indices: []string{"idx-1"}, MaxNumSegments: 1, RequestID: "req-a"}
	b := client.ForceMergeRequest{Indices: []string{"idx-1"}, MaxNumSegments: 1, RequestID: "req-b"}

	assert.NotEqual(t, NewForceMergeRequestKey(a), NewForceMergeRequestKey(b))
}

func TestActionDeduplicatorCollapsesConcurrentCalls(t *testing.T) {
	d := NewActionDeduplicator[string]()

	var invocations int
	var mu sync.Mutex
	var wg sync.WaitGroup

	release := make(chan struct{})

	action := func(onDone func(resp any, err error)) {
		mu.Lock()
		invocations++
		mu.Unlock()
		go func() {
			<-release
			onDone("done", nil)
		}()
	}

	results := make([]string, 0, 3)
	var resultsMu sync.Mutex
	var callbacks sync.WaitGroup
	callbacks.Add(3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Execute("key-1", action, func(resp any, err error) {
				resultsMu.Lock()
				results = append(results, resp.(string))
				resultsMu.Unlock()
				callbacks.Done()
			})
		}()
	}

	// Release the single in-flight action only once all three calls have
	// registered, then wait for every waiter to be notified.
	wg.Wait()
	close(release)
	callbacks.Wait()

	assert.Equal(t, 1, invocations)
	assert.Len(t, results, 3)
	assert.Equal(t, 0, d.Size())
}

func TestActionDeduplicatorSizeTracksInFlight(t *testing.T) {
	d := NewActionDeduplicator[string]()
	var onDone func(resp any, err error)

	d.Execute("key-1", func(done func(resp any, err error)) {
		onDone = done
	}, func(resp any, err error) {})

	assert.Equal(t, 1, d.Size())
	onDone(nil, nil)
	assert.Equal(t, 0, d.Size())
}
