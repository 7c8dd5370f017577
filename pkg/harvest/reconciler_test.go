package harvest

import (
	"context"
	"slices"
	"sync"
	"testing"
)

// flakyFetcher fails each page a configured number of times, then succeeds.
type flakyFetcher struct {
	mu       sync.Mutex
	failures map[int]int
	attempts []int
}

func (f *flakyFetcher) Fetch(ctx context.Context, u FetchUnit) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts = append(f.attempts, u.Page)
	if f.failures[u.Page] > 0 {
		f.failures[u.Page]--
		return Outcome{Unit: u, Err: &PageError{Unit: u, Err: errUpstream}}
	}
	return okArtifact(u, int64(u.Page))
}

func TestReconciler_Monotone(t *testing.T) {
	tests := []struct {
		name          string
		missing       []int
		failures      map[int]int
		passes        int
		wantRecovered []int
		wantStill     []int
		wantAttempts  []int
	}{
		{
			name:          "all recover",
			missing:       []int{4, 2},
			failures:      map[int]int{},
			passes:        1,
			wantRecovered: []int{2, 4},
			wantStill:     []int{},
			wantAttempts:  []int{2, 4},
		},
		{
			name:          "one stays missing",
			missing:       []int{1, 3},
			failures:      map[int]int{3: 5},
			passes:        1,
			wantRecovered: []int{1},
			wantStill:     []int{3},
			wantAttempts:  []int{1, 3},
		},
		{
			name:          "second pass recovers",
			missing:       []int{2},
			failures:      map[int]int{2: 1},
			passes:        2,
			wantRecovered: []int{2},
			wantStill:     []int{},
			wantAttempts:  []int{2, 2},
		},
		{
			name:          "nothing missing",
			missing:       nil,
			failures:      map[int]int{},
			passes:        3,
			wantRecovered: nil,
			wantStill:     []int{},
			wantAttempts:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewPartitionState(usPartition, 5)
			for _, p := range tt.missing {
				state.Missing.Add(p)
			}
			before := state.Missing.Snapshot()

			f := &flakyFetcher{failures: tt.failures}
			res := NewReconciler(f, newMemSink(), tt.passes, 0).Reconcile(context.Background(), state)

			if !slices.Equal(res.Recovered, tt.wantRecovered) {
				t.Errorf("Recovered = %v, want %v", res.Recovered, tt.wantRecovered)
			}
			if !slices.Equal(res.StillMissing, tt.wantStill) {
				t.Errorf("StillMissing = %v, want %v", res.StillMissing, tt.wantStill)
			}
			if !slices.Equal(f.attempts, tt.wantAttempts) {
				t.Errorf("attempt order = %v, want %v", f.attempts, tt.wantAttempts)
			}
			if res.Attempted != len(tt.wantAttempts) {
				t.Errorf("Attempted = %d", res.Attempted)
			}

			after := state.Missing.Snapshot()
			for _, p := range after {
				if !slices.Contains(before, p) {
					t.Errorf("page %d added to Missing during reconciliation", p)
				}
			}
			if len(state.Artifacts) != len(tt.wantRecovered) {
				t.Errorf("artifacts appended = %d", len(state.Artifacts))
			}
		})
	}
}

func TestReconciler_WriteFailureStaysMissing(t *testing.T) {
	sink := newMemSink()
	sink.failWrites[2] = 1

	state := NewPartitionState(usPartition, 2)
	state.Missing.Add(2)

	res := NewReconciler(&flakyFetcher{failures: map[int]int{}}, sink, 1, 0).Reconcile(context.Background(), state)

	if !slices.Equal(res.StillMissing, []int{2}) {
		t.Errorf("StillMissing = %v", res.StillMissing)
	}
	if res.Errors[2] == nil {
		t.Error("write failure should be recorded")
	}
}

func TestReconciler_StopsOnCancel(t *testing.T) {
	state := NewPartitionState(usPartition, 3)
	state.Missing.Add(1)
	state.Missing.Add(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &flakyFetcher{failures: map[int]int{}}
	res := NewReconciler(f, newMemSink(), 1, 0).Reconcile(ctx, state)

	if res.Attempted != 0 || len(f.attempts) != 0 {
		t.Errorf("attempted %d after cancel", res.Attempted)
	}
	if !slices.Equal(res.StillMissing, []int{1, 2}) {
		t.Errorf("StillMissing = %v", res.StillMissing)
	}
}
