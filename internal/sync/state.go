package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, registers as "sqlite"
)

const (
	walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit
	timeLayout          = time.RFC3339Nano
)

// Store is the persistence interface the executor, worker, and webhook
// intake depend on. SQLiteStore is the only implementation; the interface
// exists so executor/worker tests can substitute a fake.
type Store interface {
	GetOrCreateSyncRecord(ctx context.Context, doctype, docname string) (*SyncRecord, error)
	ClaimSyncRecord(ctx context.Context, doctype, docname string) (bool, error)
	ReleaseSyncRecord(ctx context.Context, rec *SyncRecord) error
	AppendLog(ctx context.Context, entry *SyncLogEntry) error
	ListSyncRecords(ctx context.Context, statusFilter Status) ([]*SyncRecord, error)

	RecordConflict(ctx context.Context, c *ConflictRecord) error
	ListConflicts(ctx context.Context, onlyUnresolved bool) ([]*ConflictRecord, error)
	ResolveConflict(ctx context.Context, id, resolution string) error

	Enqueue(ctx context.Context, item *WebhookQueueItem) error
	ClaimBatch(ctx context.Context, batchSize int) ([]*WebhookQueueItem, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, maxRetries int, errMsg string) error
	SweepStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
	ClearAllSyncingFlags(ctx context.Context) (int64, error)
	QueueCounts(ctx context.Context) (pending, processing int, err error)

	Close() error
}

// SQLiteStore implements Store using an embedded SQLite database in WAL
// mode. All sync state (sync records, audit log, conflicts, webhook queue)
// is persisted here.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	recordStmts   recordStatements
	logStmts      logStatements
	conflictStmts conflictStatements
	queueStmts    queueStatements
}

type recordStatements struct {
	getOrCreate, claim, release, list *sql.Stmt
}

type logStatements struct {
	insert *sql.Stmt
}

type conflictStatements struct {
	record, list, listUnresolved, resolve *sql.Stmt
}

type queueStatements struct {
	enqueue, claimBatch, markProcessed, markFailed, sweepStale, clearSyncing, counts *sql.Stmt
}

// NewStore opens the database at dbPath (use ":memory:" for tests), applies
// migrations, and prepares all repeated statements.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening sync state database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sync: open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync: prepare statements: %w", err)
	}

	logger.Info("sync state database ready", "path", dbPath)

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct{ sql, desc string }{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("sync: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

const sqlGetOrCreateSyncRecord = `
INSERT INTO sync_records (doctype, docname, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(doctype, docname) DO NOTHING`

const sqlSelectSyncRecord = `
SELECT doctype, docname, cloud_hash, local_hash, cloud_modified, local_modified,
       last_synced, last_direction, is_syncing, status, error_message, retry_count,
       created_at, updated_at
FROM sync_records WHERE doctype = ? AND docname = ?`

const sqlClaimSyncRecord = `
UPDATE sync_records SET is_syncing = 1, updated_at = ?
WHERE doctype = ? AND docname = ? AND is_syncing = 0`

const sqlReleaseSyncRecord = `
UPDATE sync_records SET
  is_syncing = 0, cloud_hash = ?, local_hash = ?, cloud_modified = ?, local_modified = ?,
  last_synced = ?, last_direction = ?, status = ?, error_message = ?, retry_count = ?,
  updated_at = ?
WHERE doctype = ? AND docname = ?`

const sqlListSyncRecords = `
SELECT doctype, docname, cloud_hash, local_hash, cloud_modified, local_modified,
       last_synced, last_direction, is_syncing, status, error_message, retry_count,
       created_at, updated_at
FROM sync_records WHERE (? = '' OR status = ?) ORDER BY doctype, docname`

const sqlInsertLog = `
INSERT INTO sync_log (timestamp, doctype, docname, action, direction, status, message)
VALUES (?, ?, ?, ?, ?, ?, ?)`

const sqlInsertConflict = `
INSERT INTO conflicts (id, doctype, docname, cloud_snapshot, local_snapshot,
  cloud_modified, local_modified, resolved, resolution, resolved_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sqlListConflicts = `
SELECT id, doctype, docname, cloud_snapshot, local_snapshot, cloud_modified, local_modified,
       resolved, resolution, resolved_at, created_at
FROM conflicts ORDER BY created_at DESC`

const sqlListUnresolvedConflicts = `
SELECT id, doctype, docname, cloud_snapshot, local_snapshot, cloud_modified, local_modified,
       resolved, resolution, resolved_at, created_at
FROM conflicts WHERE resolved = 0 ORDER BY created_at DESC`

const sqlResolveConflict = `
UPDATE conflicts SET resolved = 1, resolution = ?, resolved_at = ? WHERE id = ?`

const sqlEnqueue = `
INSERT INTO webhook_queue (id, source, doctype, docname, action, raw_payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

const sqlClaimBatch = `
UPDATE webhook_queue SET processing = 1
WHERE id IN (
  SELECT id FROM webhook_queue
  WHERE processed = 0 AND processing = 0
  ORDER BY created_at ASC LIMIT ?
)
RETURNING id, source, doctype, docname, action, raw_payload, processed, processing,
          created_at, processed_at, retry_count, error_message`

const sqlMarkProcessed = `
UPDATE webhook_queue SET processed = 1, processing = 0, processed_at = ? WHERE id = ?`

const sqlMarkFailedRetry = `
UPDATE webhook_queue SET processing = 0, retry_count = retry_count + 1, error_message = ?
WHERE id = ?`

const sqlMarkFailedTerminal = `
UPDATE webhook_queue SET processed = 1, processing = 0, processed_at = ?,
  retry_count = retry_count + 1, error_message = ? WHERE id = ?`

const sqlGetQueueRetryCount = `SELECT retry_count FROM webhook_queue WHERE id = ?`

const sqlSweepStaleClaims = `
UPDATE webhook_queue SET processing = 0 WHERE processing = 1 AND created_at < ?`

const sqlClearAllSyncingFlags = `
UPDATE sync_records SET is_syncing = 0 WHERE is_syncing = 1`

const sqlQueueCounts = `
SELECT
  SUM(CASE WHEN processed = 0 AND processing = 0 THEN 1 ELSE 0 END),
  SUM(CASE WHEN processing = 1 THEN 1 ELSE 0 END)
FROM webhook_queue`

func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.recordStmts.getOrCreate, sqlGetOrCreateSyncRecord, "getOrCreateSyncRecord"},
		{&s.recordStmts.claim, sqlClaimSyncRecord, "claimSyncRecord"},
		{&s.recordStmts.release, sqlReleaseSyncRecord, "releaseSyncRecord"},
		{&s.recordStmts.list, sqlListSyncRecords, "listSyncRecords"},
		{&s.logStmts.insert, sqlInsertLog, "insertLog"},
		{&s.conflictStmts.record, sqlInsertConflict, "insertConflict"},
		{&s.conflictStmts.list, sqlListConflicts, "listConflicts"},
		{&s.conflictStmts.resolve, sqlResolveConflict, "resolveConflict"},
		{&s.queueStmts.enqueue, sqlEnqueue, "enqueue"},
		{&s.queueStmts.claimBatch, sqlClaimBatch, "claimBatch"},
		{&s.queueStmts.markProcessed, sqlMarkProcessed, "markProcessed"},
		{&s.queueStmts.sweepStale, sqlSweepStaleClaims, "sweepStaleClaims"},
		{&s.queueStmts.clearSyncing, sqlClearAllSyncingFlags, "clearAllSyncingFlags"},
		{&s.queueStmts.counts, sqlQueueCounts, "queueCounts"},
	})
}

// GetOrCreateSyncRecord atomically creates a sync record for (doctype,
// docname) if it does not already exist, and returns the current row (§4.2).
func (s *SQLiteStore) GetOrCreateSyncRecord(ctx context.Context, doctype, docname string) (*SyncRecord, error) {
	now := time.Now().UTC().Format(timeLayout)

	if _, err := s.recordStmts.getOrCreate.ExecContext(ctx, doctype, docname, now, now); err != nil {
		return nil, fmt.Errorf("sync: get_or_create_sync_record: %w", err)
	}

	row := s.db.QueryRowContext(ctx, sqlSelectSyncRecord, doctype, docname)

	return scanSyncRecord(row)
}

func scanSyncRecord(row *sql.Row) (*SyncRecord, error) {
	var (
		rec            SyncRecord
		lastSynced     sql.NullString
		lastSyncingInt int
	)

	err := row.Scan(
		&rec.Doctype, &rec.Docname, &rec.CloudHash, &rec.LocalHash,
		&rec.CloudModified, &rec.LocalModified, &lastSynced, &rec.LastDirection,
		&lastSyncingInt, &rec.Status, &rec.ErrorMessage, &rec.RetryCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sync: scan sync record: %w", err)
	}

	rec.IsSyncing = lastSyncingInt != 0

	if lastSynced.Valid && lastSynced.String != "" {
		t, parseErr := time.Parse(timeLayout, lastSynced.String)
		if parseErr == nil {
			rec.LastSynced = &t
		}
	}

	return &rec, nil
}

// ClaimSyncRecord sets is_syncing=true conditionally, returning false if
// another operation already holds the claim (per-key mutual exclusion,
// §4.4, cross-restart safeguard per §5).
func (s *SQLiteStore) ClaimSyncRecord(ctx context.Context, doctype, docname string) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)

	res, err := s.recordStmts.claim.ExecContext(ctx, now, doctype, docname)
	if err != nil {
		return false, fmt.Errorf("sync: claim sync record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sync: claim sync record rows affected: %w", err)
	}

	return n == 1, nil
}

// ReleaseSyncRecord writes the final state of a SyncRecord and clears
// is_syncing. Called on every exit path of the executor (success, failure,
// skip) per §3's invariant.
func (s *SQLiteStore) ReleaseSyncRecord(ctx context.Context, rec *SyncRecord) error {
	now := time.Now().UTC()
	rec.UpdatedAt = now

	var lastSynced any
	if rec.LastSynced != nil {
		lastSynced = rec.LastSynced.UTC().Format(timeLayout)
	}

	_, err := s.recordStmts.release.ExecContext(ctx,
		rec.CloudHash, rec.LocalHash, rec.CloudModified, rec.LocalModified,
		lastSynced, rec.LastDirection, rec.Status, rec.ErrorMessage, rec.RetryCount,
		now.Format(timeLayout), rec.Doctype, rec.Docname,
	)
	if err != nil {
		return fmt.Errorf("sync: release sync record: %w", err)
	}

	return nil
}

// ListSyncRecords returns all sync records, optionally filtered by status.
// Pass "" for statusFilter to list all records (used by the `status` CLI
// command, §7).
func (s *SQLiteStore) ListSyncRecords(ctx context.Context, statusFilter Status) ([]*SyncRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlListSyncRecords, string(statusFilter), string(statusFilter))
	if err != nil {
		return nil, fmt.Errorf("sync: list sync records: %w", err)
	}
	defer rows.Close()

	var out []*SyncRecord

	for rows.Next() {
		var (
			rec        SyncRecord
			lastSynced sql.NullString
			syncingInt int
		)

		if err := rows.Scan(
			&rec.Doctype, &rec.Docname, &rec.CloudHash, &rec.LocalHash,
			&rec.CloudModified, &rec.LocalModified, &lastSynced, &rec.LastDirection,
			&syncingInt, &rec.Status, &rec.ErrorMessage, &rec.RetryCount,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sync: scan sync record row: %w", err)
		}

		rec.IsSyncing = syncingInt != 0

		if lastSynced.Valid && lastSynced.String != "" {
			if t, parseErr := time.Parse(timeLayout, lastSynced.String); parseErr == nil {
				rec.LastSynced = &t
			}
		}

		out = append(out, &rec)
	}

	return out, rows.Err()
}

// AppendLog writes one audit row (§3).
func (s *SQLiteStore) AppendLog(ctx context.Context, entry *SyncLogEntry) error {
	_, err := s.logStmts.insert.ExecContext(ctx,
		time.Now().UTC().Format(timeLayout), entry.Doctype, entry.Docname,
		entry.Action, entry.Direction, entry.Status, entry.Message,
	)
	if err != nil {
		return fmt.Errorf("sync: append log: %w", err)
	}

	return nil
}

// RecordConflict persists a ConflictRecord (§3, §4.7).
func (s *SQLiteStore) RecordConflict(ctx context.Context, c *ConflictRecord) error {
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = c.ResolvedAt.UTC().Format(timeLayout)
	}

	_, err := s.conflictStmts.record.ExecContext(ctx,
		c.ID, c.Doctype, c.Docname, c.CloudSnapshot, c.LocalSnapshot,
		c.CloudModified, c.LocalModified, c.Resolved, c.Resolution, resolvedAt,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sync: record conflict: %w", err)
	}

	return nil
}

// ListConflicts returns conflict records, optionally restricted to
// unresolved ones (used by the `conflicts` CLI command, §7).
func (s *SQLiteStore) ListConflicts(ctx context.Context, onlyUnresolved bool) ([]*ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlListConflicts)
	if err != nil {
		return nil, fmt.Errorf("sync: list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*ConflictRecord

	for rows.Next() {
		c, err := scanConflictRow(rows)
		if err != nil {
			return nil, err
		}

		if onlyUnresolved && c.Resolved {
			continue
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

func scanConflictRow(rows *sql.Rows) (*ConflictRecord, error) {
	var (
		c          ConflictRecord
		resolvedAt sql.NullString
		resolvedI  int
	)

	if err := rows.Scan(
		&c.ID, &c.Doctype, &c.Docname, &c.CloudSnapshot, &c.LocalSnapshot,
		&c.CloudModified, &c.LocalModified, &resolvedI, &c.Resolution, &resolvedAt, &c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("sync: scan conflict row: %w", err)
	}

	c.Resolved = resolvedI != 0

	if resolvedAt.Valid && resolvedAt.String != "" {
		if t, err := time.Parse(timeLayout, resolvedAt.String); err == nil {
			c.ResolvedAt = &t
		}
	}

	return &c, nil
}

// ResolveConflict marks a ConflictRecord resolved. This is an external admin
// operation per §9's Open Question — no automatic caller invokes it.
func (s *SQLiteStore) ResolveConflict(ctx context.Context, id, resolution string) error {
	_, err := s.conflictStmts.resolve.ExecContext(ctx, resolution, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("sync: resolve conflict: %w", err)
	}

	return nil
}

// Enqueue inserts a webhook queue item (§4.5).
func (s *SQLiteStore) Enqueue(ctx context.Context, item *WebhookQueueItem) error {
	_, err := s.queueStmts.enqueue.ExecContext(ctx,
		item.ID, item.Source, item.Doctype, item.Docname, item.Action,
		item.RawPayload, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sync: enqueue: %w", err)
	}

	return nil
}

// ClaimBatch atomically claims up to batchSize unprocessed, unclaimed queue
// items in FIFO order (§4.2, §4.6).
func (s *SQLiteStore) ClaimBatch(ctx context.Context, batchSize int) ([]*WebhookQueueItem, error) {
	rows, err := s.queueStmts.claimBatch.QueryContext(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("sync: claim batch: %w", err)
	}
	defer rows.Close()

	var out []*WebhookQueueItem

	for rows.Next() {
		var (
			item         WebhookQueueItem
			processedInt int
			processingInt int
			processedAt  sql.NullString
		)

		if err := rows.Scan(
			&item.ID, &item.Source, &item.Doctype, &item.Docname, &item.Action,
			&item.RawPayload, &processedInt, &processingInt, &item.CreatedAt,
			&processedAt, &item.RetryCount, &item.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("sync: scan queue item: %w", err)
		}

		item.Processed = processedInt != 0
		item.Processing = processingInt != 0

		out = append(out, &item)
	}

	return out, rows.Err()
}

// MarkProcessed marks a queue item successfully handled.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.queueStmts.markProcessed.ExecContext(ctx, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("sync: mark processed: %w", err)
	}

	return nil
}

// MarkFailed records a failed delivery attempt. If the item's retry_count
// (after increment) exceeds maxRetries, it is marked processed anyway so it
// does not block the queue forever (§4.6); the failure remains visible in
// the sync record itself.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, maxRetries int, errMsg string) error {
	var current int

	if err := s.db.QueryRowContext(ctx, sqlGetQueueRetryCount, id).Scan(&current); err != nil {
		return fmt.Errorf("sync: read queue retry count: %w", err)
	}

	if current+1 > maxRetries {
		_, err := s.db.ExecContext(ctx, sqlMarkFailedTerminal, time.Now().UTC().Format(timeLayout), errMsg, id)
		if err != nil {
			return fmt.Errorf("sync: mark failed terminal: %w", err)
		}

		return nil
	}

	_, err := s.db.ExecContext(ctx, sqlMarkFailedRetry, errMsg, id)
	if err != nil {
		return fmt.Errorf("sync: mark failed retry: %w", err)
	}

	return nil
}

// SweepStaleClaims reclaims processing=true queue rows whose created_at is
// older than olderThan (§4.2, §4.6, §5). Worker.RunSweeper runs it once at
// startup and then on an interval.
func (s *SQLiteStore) SweepStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)

	res, err := s.queueStmts.sweepStale.ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sync: sweep stale claims: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sync: sweep stale claims rows affected: %w", err)
	}

	if n > 0 {
		s.logger.Info("reclaimed stale webhook queue claims", "count", n)
	}

	return n, nil
}

// ClearAllSyncingFlags clears every is_syncing=true flag. Called once at
// startup: any such flag corresponds to no in-process lock (§5).
func (s *SQLiteStore) ClearAllSyncingFlags(ctx context.Context) (int64, error) {
	res, err := s.queueStmts.clearSyncing.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: clear syncing flags: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sync: clear syncing flags rows affected: %w", err)
	}

	if n > 0 {
		s.logger.Info("cleared stale is_syncing flags", "count", n)
	}

	return n, nil
}

// QueueCounts returns the number of pending and in-flight queue items, for
// the `GET /status` endpoint (§4.5, §6).
func (s *SQLiteStore) QueueCounts(ctx context.Context) (pending, processing int, err error) {
	var pendingN, processingN sql.NullInt64

	row := s.queueStmts.counts.QueryRowContext(ctx)
	if scanErr := row.Scan(&pendingN, &processingN); scanErr != nil {
		return 0, 0, fmt.Errorf("sync: queue counts: %w", scanErr)
	}

	return int(pendingN.Int64), int(processingN.Int64), nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
