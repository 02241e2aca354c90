package serverstate

import "testing"

func TestTrackerLifecycle(t *testing.T) {
	store := NewMemStore()
	tr := NewTracker(store)
	if st := tr.Snapshot(); st.Status != StatusNotReady {
		t.Fatalf("initial status %q", st.Status)
	}
	if store.Load().Status != StatusNotReady {
		t.Fatalf("tracker must mirror the initial state")
	}

	tr.SetStatus(StatusReady)
	if st := store.Load(); st.Status != StatusReady || st.UpdatedAt == 0 {
		t.Fatalf("mirrored state: %+v", st)
	}

	tr.Update(3, []int{0, 1})
	st := tr.Snapshot()
	if st.Sessions != 3 || len(st.Instances) != 2 || st.Status != StatusReady {
		t.Fatalf("snapshot: %+v", st)
	}
}

func TestDrainIsSticky(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetStatus(StatusReady)
	tr.StartDrain()
	if !tr.IsDraining() {
		t.Fatalf("expected draining")
	}
	tr.SetStatus(StatusReady)
	if st := tr.Snapshot(); st.Status != StatusDraining {
		t.Fatalf("drain must not be overridden, got %q", st.Status)
	}
	tr.Update(0, nil)
	if st := tr.Snapshot(); st.Status != StatusDraining {
		t.Fatalf("updates must keep the draining status, got %q", st.Status)
	}
}
