package magma

import (
	"sync"
	"testing"
)

func TestIDIssuer_Sequential(t *testing.T) {
	ids := NewIDIssuer()
	for want := FlowID(0); want < 3; want++ {
		if got := ids.Next(); got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestIDIssuer_ConcurrentUnique(t *testing.T) {
	ids := NewIDIssuer()
	var mu sync.Mutex
	seen := make(map[FlowID]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := ids.Next()
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				t.Errorf("duplicate id %d", id)
			}
			seen[id] = true
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("expected 50 ids, got %d", len(seen))
	}
}
