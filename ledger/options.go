package ledger

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder receives ledger events for metrics. *metrics.Metrics implements it.
type Recorder interface {
	BalanceEdited(op string, err error)
	RolloverFinished(err error, elapsed time.Duration)
	BulkRolloverFinished(res BulkResult)
	SnapshotCaptured(kind SnapshotKind)
}

type nopRecorder struct{}

func (nopRecorder) BalanceEdited(string, error)           {}
func (nopRecorder) RolloverFinished(error, time.Duration) {}
func (nopRecorder) BulkRolloverFinished(BulkResult)       {}
func (nopRecorder) SnapshotCaptured(SnapshotKind)         {}

// Options carries the collaborators shared by the ledger services.
// Zero fields fall back to in-process defaults.
type Options struct {
	Locker   Locker
	Retry    RetryPolicy
	Logger   *zap.Logger
	Recorder Recorder

	// Now and NewID are overridable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Locker == nil {
		o.Locker = NewKeyedMutex()
	}
	if o.Retry.MaxTries == 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}
