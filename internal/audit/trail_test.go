package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/thinglink-core/internal/fault"
	"github.com/nerrad567/thinglink-core/internal/pairing"
)

type failingRepo struct{ calls int }

func (r *failingRepo) Create(context.Context, *Entry) error {
	r.calls++
	return errors.New("disk full")
}

func (r *failingRepo) List(context.Context, Filter) (*Page, error) {
	return nil, errors.New("disk full")
}

type warnRecorder struct{ msgs []string }

func (w *warnRecorder) Warn(msg string, _ ...any) { w.msgs = append(w.msgs, msg) }

func TestTrail_PairingFinished(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(NewSQLiteRepository(setupTestDB(t).DB))

	trail.PairingFinished(ctx, pairing.Result{
		AttemptID: "a1",
		Mode:      pairing.ModeBLE,
		UUID:      "uuid-1",
		Device:    &pairing.PairedDevice{DevID: "dev-1"},
		Duration:  1500 * time.Millisecond,
	})
	trail.PairingFinished(ctx, pairing.Result{
		AttemptID: "a2",
		Mode:      pairing.ModeCombo,
		UUID:      "uuid-2",
		Err:       &fault.TimeoutError{Op: "activate COMBO", After: time.Minute},
	})

	tests := []struct {
		action   string
		entityID string
		outcome  string
	}{
		{ActionPaired, "dev-1", string(pairing.OutcomeSuccess)},
		{ActionPairFailed, "uuid-2", string(pairing.OutcomeTimeout)},
	}
	for _, tt := range tests {
		page, err := trail.List(ctx, Filter{Action: tt.action})
		if err != nil {
			t.Fatalf("List(%s) error = %v", tt.action, err)
		}
		if len(page.Entries) != 1 {
			t.Fatalf("List(%s) len = %d, want 1", tt.action, len(page.Entries))
		}
		e := page.Entries[0]
		if e.EntityID != tt.entityID || e.Source != SourcePairing {
			t.Errorf("%s entry = %+v", tt.action, e)
		}
		if e.Details["outcome"] != tt.outcome {
			t.Errorf("%s outcome = %v, want %s", tt.action, e.Details["outcome"], tt.outcome)
		}
	}
}

func TestTrail_DeviceRemoved(t *testing.T) {
	ctx := context.Background()
	trail := NewTrail(NewSQLiteRepository(setupTestDB(t).DB))

	trail.DeviceRemoved(ctx, "dev-1", "sub-admin", SourceAPI)

	page, err := trail.List(ctx, Filter{EntityID: "dev-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 || page.Entries[0].Action != ActionRemoved || page.Entries[0].Subject != "sub-admin" {
		t.Errorf("page = %+v", page)
	}
}

func TestTrail_WriteFailureIsLogged(t *testing.T) {
	repo := &failingRepo{}
	logs := &warnRecorder{}
	trail := NewTrail(repo)
	trail.SetLogger(logs)

	trail.DeviceRemoved(context.Background(), "dev-1", "", SourceProvider)

	if repo.calls != 1 || len(logs.msgs) != 1 {
		t.Errorf("calls = %d, warnings = %v", repo.calls, logs.msgs)
	}
}
