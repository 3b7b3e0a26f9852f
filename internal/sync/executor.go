package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fossengine/docsync-go/internal/remote"
)

// writeExcludedFields are stripped from the destination payload in addition
// to ExcludedFields, to prevent stale metadata from tainting the
// destination (§4.4 step 6).
var writeExcludedFields = []string{"modified_by", "creation", "owner", "idx", "docstatus"}

// ExecutorConfig bundles the executor's tunables (§6's retry.max_attempts
// and excluded_fields options).
type ExecutorConfig struct {
	ExcludedFields   []string
	MaxRetryCount    int
	ConflictPolicy   Policy
}

// Executor orchestrates fetch -> resolve -> write -> record for one
// (doctype, docname) key at a time, enforcing per-key mutual exclusion
// (§4.4).
type Executor struct {
	cloud    *remote.Client
	local    *remote.Client
	store    Store
	keylock  *KeyLock
	conflict *ConflictPolicy
	cfg      ExecutorConfig
	logger   *slog.Logger
}

// NewExecutor constructs an Executor bound to the two remote clients and the
// state store.
func NewExecutor(cloud, local *remote.Client, store Store, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		cloud:    cloud,
		local:    local,
		store:    store,
		keylock:  NewKeyLock(),
		conflict: NewConflictPolicy(cfg.ConflictPolicy, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// SyncOne performs the full operation sequence of §4.4 for one key.
// direction_hint, if non-empty, comes from the webhook that triggered this
// invocation; the resolver only honors it when consistent with the hashes.
func (e *Executor) SyncOne(ctx context.Context, doctype, docname string, hint Direction) Outcome {
	key := doctype + "/" + docname

	release, ok := e.keylock.TryLock(key)
	if !ok {
		return Outcome{Result: OutcomeSkipped, Reason: "already syncing"}
	}
	defer release()

	// The claim is a conditional UPDATE, so a key seen for the first time
	// needs its row created before it can be claimed.
	seen, err := e.store.GetOrCreateSyncRecord(ctx, doctype, docname)
	if err != nil {
		return e.fail(ctx, doctype, docname, fmt.Errorf("get sync record: %w", err))
	}

	claimed, err := e.store.ClaimSyncRecord(ctx, doctype, docname)
	if err != nil {
		return e.fail(ctx, doctype, docname, fmt.Errorf("claim sync record: %w", err))
	}

	if !claimed {
		return Outcome{Result: OutcomeSkipped, Reason: "already syncing"}
	}

	return e.runClaimed(ctx, doctype, docname, seen, hint)
}

// runClaimed performs steps 2-8 of §4.4 once the per-key lock and
// is_syncing claim are both held. It always releases the claim on the way
// out, regardless of outcome.
func (e *Executor) runClaimed(ctx context.Context, doctype, docname string, seen *SyncRecord, hint Direction) Outcome {
	rec, err := e.store.GetOrCreateSyncRecord(ctx, doctype, docname)
	if err != nil {
		outcome := e.fail(ctx, doctype, docname, fmt.Errorf("get sync record: %w", err))

		// Release with the snapshot read before the claim.
		if releaseErr := e.store.ReleaseSyncRecord(ctx, seen); releaseErr != nil {
			e.logger.Error("failed to release sync record", slog.String("key", doctype+"/"+docname), slog.String("error", releaseErr.Error()))
		}

		return outcome
	}

	outcome, finalRec := e.resolveAndApply(ctx, doctype, docname, rec, hint, 0)

	if releaseErr := e.store.ReleaseSyncRecord(ctx, finalRec); releaseErr != nil {
		e.logger.Error("failed to release sync record", slog.String("key", doctype+"/"+docname), slog.String("error", releaseErr.Error()))
	}

	return outcome
}

// resolveAndApply implements the fetch/resolve/apply loop, allowing at most
// one executor-level re-resolution after a TimestampMismatch survives the
// client-level retry (§4.4 step 6, preventing livelock).
func (e *Executor) resolveAndApply(ctx context.Context, doctype, docname string, rec *SyncRecord, hint Direction, reResolutions int) (Outcome, *SyncRecord) {
	cloudDoc, localDoc, err := e.fetchBoth(ctx, doctype, docname)
	if err != nil {
		e.recordTransientFailure(rec, err)

		return Outcome{Result: OutcomeFailed, Err: err}, rec
	}

	direction := Resolve(cloudDoc, localDoc, rec, e.cfg.ExcludedFields, hint)

	switch direction {
	case DirectionNone:
		rec.IsSyncing = false
		_ = e.store.AppendLog(ctx, &SyncLogEntry{Doctype: doctype, Docname: docname, Action: LogActionSkip, Direction: DirectionNone, Status: LogStatusSkipped, Message: "no changes"})

		return Outcome{Result: OutcomeSkipped, Reason: "no changes"}, rec

	case DirectionConflict:
		return e.handleConflict(ctx, doctype, docname, cloudDoc, localDoc, rec, reResolutions)

	default:
		return e.applyDirection(ctx, doctype, docname, direction, cloudDoc, localDoc, rec, reResolutions)
	}
}

func (e *Executor) fetchBoth(ctx context.Context, doctype, docname string) (remote.Document, remote.Document, error) {
	cloudDoc, err := e.cloud.Get(ctx, doctype, docname)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch cloud: %w", err)
	}

	localDoc, err := e.local.Get(ctx, doctype, docname)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch local: %w", err)
	}

	return cloudDoc, localDoc, nil
}

func (e *Executor) handleConflict(ctx context.Context, doctype, docname string, cloudDoc, localDoc remote.Document, rec *SyncRecord, reResolutions int) (Outcome, *SyncRecord) {
	direction, resolution := e.conflict.Decide(cloudDoc, localDoc)

	resolved := direction != DirectionConflict

	conflictRec := BuildConflictRecord(doctype, docname, cloudDoc, localDoc, resolved, resolution)
	if err := e.store.RecordConflict(ctx, conflictRec); err != nil {
		e.logger.Error("failed to record conflict", slog.String("error", err.Error()))
	}

	if direction == DirectionConflict {
		rec.Status = StatusConflict
		rec.IsSyncing = false

		_ = e.store.AppendLog(ctx, &SyncLogEntry{Doctype: doctype, Docname: docname, Action: LogActionSkip, Direction: DirectionConflict, Status: LogStatusConflict, Message: "manual policy halted key"})

		return Outcome{Result: OutcomeConflict}, rec
	}

	return e.applyDirection(ctx, doctype, docname, direction, cloudDoc, localDoc, rec, reResolutions)
}

// applyDirection performs the actual write (§4.4 step 6-8). reResolutions
// tracks how many times this call has already re-resolved after a surviving
// TimestampMismatch; at most one is permitted.
func (e *Executor) applyDirection(ctx context.Context, doctype, docname string, direction Direction, cloudDoc, localDoc remote.Document, rec *SyncRecord, reResolutions int) (Outcome, *SyncRecord) {
	var source, dest remote.Document

	var destClient *remote.Client

	if direction == DirectionCloudToLocal {
		source, dest = cloudDoc, localDoc
		destClient = e.local
	} else {
		source, dest = localDoc, cloudDoc
		destClient = e.cloud
	}

	payload := stripFields(source, append(append([]string{}, e.cfg.ExcludedFields...), writeExcludedFields...))

	var (
		written remote.Document
		err     error
		action  LogAction
	)

	if dest != nil {
		payload["modified"] = dest.Modified()
		written, err = destClient.Update(ctx, doctype, docname, payload)
		action = LogActionUpdate
	} else {
		// Strip any stale name carried over from the source snapshot, then
		// set it explicitly to the key being synced: cross-endpoint lookups
		// by name require both sides to agree on the identifier.
		delete(payload, "name")
		payload["name"] = docname
		written, err = destClient.Create(ctx, doctype, payload)
		action = LogActionCreate
	}

	if err != nil {
		switch {
		case errors.Is(err, remote.ErrTimestampMismatch) && reResolutions == 0:
			e.logger.Warn("timestamp mismatch survived client retry, re-resolving once", slog.String("doctype", doctype), slog.String("docname", docname))
			return e.resolveAndApply(ctx, doctype, docname, rec, DirectionNone, reResolutions+1)

		case errors.Is(err, remote.ErrTimestampMismatch):
			// A second collision after the one permitted re-resolution is not
			// retried (§7): further attempts would only livelock against a
			// writer that keeps winning the race.
			rec.ErrorMessage = err.Error()
			rec.RetryCount++
			rec.IsSyncing = false
			rec.Status = StatusFailed

		default:
			e.recordTransientFailure(rec, err)
		}

		_ = e.store.AppendLog(ctx, &SyncLogEntry{Doctype: doctype, Docname: docname, Action: action, Direction: direction, Status: LogStatusFailed, Message: err.Error()})

		return Outcome{Result: OutcomeFailed, Direction: direction, Err: err}, rec
	}

	finalHash := remote.Hash(written, e.cfg.ExcludedFields)
	now := time.Now().UTC()

	rec.CloudHash, rec.LocalHash = finalHash, finalHash
	rec.CloudModified = cloudModifiedAfterWrite(direction, cloudDoc, written)
	rec.LocalModified = localModifiedAfterWrite(direction, localDoc, written)
	rec.LastSynced = &now
	rec.LastDirection = direction
	rec.Status = StatusSynced
	rec.RetryCount = 0
	rec.ErrorMessage = ""
	rec.IsSyncing = false

	msg := "synced"
	if reResolutions > 0 {
		msg = "retried after timestamp mismatch"
	}

	_ = e.store.AppendLog(ctx, &SyncLogEntry{Doctype: doctype, Docname: docname, Action: action, Direction: direction, Status: LogStatusSuccess, Message: msg})

	return Outcome{Result: OutcomeSynced, Direction: direction}, rec
}

// recordTransientFailure classifies err and updates rec's status (§7).
// Unauthorized and Validation errors are permanent conditions, not transport
// blips — they fail immediately rather than burning the retry budget.
// Everything else escalates to Failed once RetryCount exceeds MaxRetryCount.
func (e *Executor) recordTransientFailure(rec *SyncRecord, err error) {
	rec.ErrorMessage = err.Error()
	rec.RetryCount++
	rec.IsSyncing = false

	switch {
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, remote.ErrValidation):
		rec.Status = StatusFailed
	case rec.RetryCount > e.cfg.MaxRetryCount:
		rec.Status = StatusFailed
	default:
		rec.Status = StatusError
	}
}

func cloudModifiedAfterWrite(direction Direction, cloudDoc, written remote.Document) string {
	if direction == DirectionLocalToCloud {
		return written.Modified()
	}

	return cloudDoc.Modified()
}

func localModifiedAfterWrite(direction Direction, localDoc, written remote.Document) string {
	if direction == DirectionCloudToLocal {
		return written.Modified()
	}

	return localDoc.Modified()
}

func stripFields(doc remote.Document, excluded []string) remote.Document {
	skip := make(map[string]struct{}, len(excluded))
	for _, f := range excluded {
		skip[f] = struct{}{}
	}

	out := make(remote.Document, len(doc))

	for k, v := range doc {
		if _, excludedField := skip[k]; excludedField {
			continue
		}

		out[k] = v
	}

	return out
}

// fail releases no lock (caller holds it via defer); it logs err and returns
// a Failed outcome without writing anything to the sync record. Used for
// errors while reading or claiming the sync record.
func (e *Executor) fail(ctx context.Context, doctype, docname string, err error) Outcome {
	e.logger.Error("sync_one failed reading or claiming the sync record", slog.String("doctype", doctype), slog.String("docname", docname), slog.String("error", err.Error()))

	return Outcome{Result: OutcomeFailed, Err: err}
}

// SyncDoctype syncs the docnames of doctype found on either endpoint, up to
// limit documents, by unioning one listing page from each side (§4.4). The
// page size is limit, or 100 when limit is 0; documents past that first page
// on an endpoint are not visited.
func (e *Executor) SyncDoctype(ctx context.Context, doctype string, limit int) (Summary, error) {
	names, err := e.listDoctypeNames(ctx, doctype, limit)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary

	for _, name := range names {
		outcome := e.SyncOne(ctx, doctype, name, DirectionNone)
		summary.Add(outcome)
	}

	return summary, nil
}

func (e *Executor) listDoctypeNames(ctx context.Context, doctype string, limit int) ([]string, error) {
	pageSize := limit
	if pageSize <= 0 {
		pageSize = 100
	}

	cloudDocs, err := e.cloud.List(ctx, doctype, nil, pageSize, 0)
	if err != nil {
		return nil, fmt.Errorf("list cloud %s: %w", doctype, err)
	}

	localDocs, err := e.local.List(ctx, doctype, nil, pageSize, 0)
	if err != nil {
		return nil, fmt.Errorf("list local %s: %w", doctype, err)
	}

	seen := make(map[string]struct{})

	var names []string

	for _, d := range append(cloudDocs, localDocs...) {
		name := d.Name()
		if name == "" {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}

		names = append(names, name)

		if limit > 0 && len(names) >= limit {
			break
		}
	}

	return names, nil
}

// SyncAll syncs every configured doctype (§4.4); doctypes is the
// operator-configured list (§6's "doctypes" option).
func (e *Executor) SyncAll(ctx context.Context, doctypes []string) (Summary, error) {
	var total Summary

	for _, dt := range doctypes {
		s, err := e.SyncDoctype(ctx, dt, 0)
		if err != nil {
			return total, err
		}

		total.Synced += s.Synced
		total.Skipped += s.Skipped
		total.Conflict += s.Conflict
		total.Failed += s.Failed
	}

	return total, nil
}
