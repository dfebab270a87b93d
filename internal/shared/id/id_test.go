package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1.String(), id2.String(), "Generated IDs should be unique")
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	assert.Len(t, gen.GenerateString(), 26, "ULID should be 26 characters")
}

func TestNewCallID(t *testing.T) {
	callID := NewCallID()

	require.True(t, strings.HasPrefix(callID.String(), "call_"), "got %s", callID)
	assert.True(t, IsCallID(callID.String()))
	assert.False(t, IsCallID("req_"+Default().GenerateString()))
	assert.False(t, IsCallID("call_not-a-ulid"))
	assert.False(t, IsCallID(""))
}

func TestCallIDTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	callID := NewCallID()

	_, ulidPart, _ := strings.Cut(callID.String(), "_")
	ts, err := Timestamp(ulidPart)
	require.NoError(t, err)
	assert.True(t, ts.After(before))
}

func TestConcurrentCallIDsAreUnique(t *testing.T) {
	const workers = 16
	const perWorker = 500

	var (
		mu   sync.Mutex
		seen = make(map[CallID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]CallID, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, NewCallID())
			}
			mu.Lock()
			for _, c := range local {
				seen[c] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestSubscriptionAndConnectionIDs(t *testing.T) {
	assert.NotEqual(t, NewSubscriptionID(), NewSubscriptionID())
	assert.Len(t, NewConnectionID().String(), 36)
}
