package audit

import (
	"context"
	"time"

	"github.com/nerrad567/thinglink-core/internal/pairing"
)

// Logger is the logging surface used by Trail.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Trail records entries on a best-effort basis.
type Trail struct {
	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewTrail creates a trail over repo.
func NewTrail(repo Repository) *Trail {
	return &Trail{repo: repo, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger for dropped writes.
func (t *Trail) SetLogger(l Logger) {
	if l != nil {
		t.logger = l
	}
}

// Record stores e. Failures are logged, not returned.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	if err := t.repo.Create(ctx, &e); err != nil {
		t.logger.Warn("audit entry dropped", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}

// DeviceRemoved records a removal by subject from source.
func (t *Trail) DeviceRemoved(ctx context.Context, deviceID, subject, source string) {
	t.Record(ctx, Entry{
		Action:     ActionRemoved,
		EntityType: EntityDevice,
		EntityID:   deviceID,
		Subject:    subject,
		Source:     source,
	})
}

// PairingFinished records the outcome of an activation attempt.
func (t *Trail) PairingFinished(ctx context.Context, res pairing.Result) {
	e := Entry{
		EntityType: EntityDevice,
		Source:     SourcePairing,
		Details: map[string]any{
			"attempt_id":  res.AttemptID,
			"mode":        string(res.Mode),
			"outcome":     string(res.Outcome()),
			"duration_ms": res.Duration.Milliseconds(),
		},
	}
	if res.UUID != "" {
		e.Details["uuid"] = res.UUID
	}

	if res.Err == nil && res.Device != nil {
		e.Action = ActionPaired
		e.EntityID = res.Device.DevID
	} else {
		e.Action = ActionPairFailed
		e.EntityID = res.UUID
		if res.Err != nil {
			e.Details["error"] = res.Err.Error()
		}
	}
	t.Record(ctx, e)
}

// List pages through stored entries.
func (t *Trail) List(ctx context.Context, f Filter) (*Page, error) {
	return t.repo.List(ctx, f)
}
