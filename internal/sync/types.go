// Package sync implements the core bidirectional document-sync engine: the
// direction resolver, the sync executor, the durable webhook queue and its
// worker, and the conflict-resolution policy engine. All state lives in a
// single SQLite-backed store.
package sync

import "time"

// Direction indicates which side writes to whom, or that no write is needed.
type Direction string

const (
	DirectionNone         Direction = "none"
	DirectionCloudToLocal Direction = "c->l"
	DirectionLocalToCloud Direction = "l->c"
	DirectionConflict     Direction = "conflict"
)

// Status is the lifecycle state of a SyncRecord.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSynced   Status = "synced"
	StatusError    Status = "error"
	StatusFailed   Status = "failed"
	StatusConflict Status = "conflict"
)

// Source identifies which endpoint originated a webhook event.
type Source string

const (
	SourceCloud Source = "cloud"
	SourceLocal Source = "local"
)

// QueueAction is the CRUD action a webhook reported.
type QueueAction string

const (
	ActionCreate QueueAction = "create"
	ActionUpdate QueueAction = "update"
	ActionDelete QueueAction = "delete"
)

// LogAction is the action an executor operation actually performed, recorded
// in the audit log. It is distinct from QueueAction because the executor
// decides create vs. update itself based on destination existence.
type LogAction string

const (
	LogActionCreate LogAction = "create"
	LogActionUpdate LogAction = "update"
	LogActionDelete LogAction = "delete"
	LogActionSkip   LogAction = "skip"
)

// LogStatus is the terminal result of one audit log entry.
type LogStatus string

const (
	LogStatusSuccess  LogStatus = "success"
	LogStatusFailed   LogStatus = "failed"
	LogStatusConflict LogStatus = "conflict"
	LogStatusSkipped  LogStatus = "skipped"
)

// SyncRecord is the persistent per-(doctype,docname) state used by the
// resolver to detect drift since the last successful sync (§3).
type SyncRecord struct {
	Doctype       string
	Docname       string
	CloudHash     string
	LocalHash     string
	CloudModified string
	LocalModified string
	LastSynced    *time.Time
	LastDirection Direction
	IsSyncing     bool
	Status        Status
	ErrorMessage  string
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the composite (doctype, docname) identity of the record.
func (r *SyncRecord) Key() string {
	return r.Doctype + "/" + r.Docname
}

// SyncLogEntry is one append-only audit row (§3).
type SyncLogEntry struct {
	ID        int64
	Timestamp time.Time
	Doctype   string
	Docname   string
	Action    LogAction
	Direction Direction
	Status    LogStatus
	Message   string
}

// ConflictRecord captures a divergence event, whether auto-resolved or
// still pending external review (§3).
type ConflictRecord struct {
	ID            string
	Doctype       string
	Docname       string
	CloudSnapshot string // JSON
	LocalSnapshot string // JSON
	CloudModified string
	LocalModified string
	Resolved      bool
	Resolution    string
	ResolvedAt    *time.Time
	CreatedAt     time.Time
}

// WebhookQueueItem is one durably-queued change notification (§3).
type WebhookQueueItem struct {
	ID           string
	Source       Source
	Doctype      string
	Docname      string
	Action       QueueAction
	RawPayload   string // JSON
	Processed    bool
	Processing   bool
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	RetryCount   int
	ErrorMessage string
}

// Outcome is the result of a sync_one invocation (§4.4).
type Outcome struct {
	Result    OutcomeResult
	Direction Direction
	Reason    string
	Err       error
}

// OutcomeResult is the closed variant Outcome can take.
type OutcomeResult string

const (
	OutcomeSynced   OutcomeResult = "synced"
	OutcomeSkipped  OutcomeResult = "skipped"
	OutcomeConflict OutcomeResult = "conflict"
	OutcomeFailed   OutcomeResult = "failed"
)

// Summary aggregates Outcome counts across a sync_doctype/sync_all run.
type Summary struct {
	Synced   int
	Skipped  int
	Conflict int
	Failed   int
}

// Add folds one Outcome into the summary.
func (s *Summary) Add(o Outcome) {
	switch o.Result {
	case OutcomeSynced:
		s.Synced++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeConflict:
		s.Conflict++
	case OutcomeFailed:
		s.Failed++
	}
}

// Total returns the total number of keys processed.
func (s *Summary) Total() int {
	return s.Synced + s.Skipped + s.Conflict + s.Failed
}
