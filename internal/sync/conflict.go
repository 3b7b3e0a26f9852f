package sync

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fossengine/docsync-go/internal/remote"
)

// Policy is the configured conflict-resolution rule (§4.7).
type Policy string

const (
	PolicyLatestTimestamp Policy = "latest_timestamp"
	PolicyCloudWins       Policy = "cloud_wins"
	PolicyLocalWins       Policy = "local_wins"
	PolicyManual          Policy = "manual"
)

// ConflictPolicy decides how to resolve a divergence once the resolver has
// returned DirectionConflict, and builds the ConflictRecord audit trail.
type ConflictPolicy struct {
	policy Policy
	logger *slog.Logger
}

// NewConflictPolicy constructs a policy engine. Unrecognized policy values
// behave as PolicyManual (fail safe, never silently pick a side).
func NewConflictPolicy(policy Policy, logger *slog.Logger) *ConflictPolicy {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConflictPolicy{policy: policy, logger: logger}
}

// Decide applies the configured policy to a divergence between cloudDoc and
// localDoc, returning the winning direction (or DirectionConflict if the
// policy is manual or cannot decide).
func (p *ConflictPolicy) Decide(cloudDoc, localDoc remote.Document) (Direction, string) {
	switch p.policy {
	case PolicyCloudWins:
		return DirectionCloudToLocal, "cloud_wins"
	case PolicyLocalWins:
		return DirectionLocalToCloud, "local_wins"
	case PolicyManual:
		return DirectionConflict, "manual"
	case PolicyLatestTimestamp:
		return p.decideByLatestTimestamp(cloudDoc, localDoc)
	default:
		p.logger.Warn("unrecognized conflict policy, treating as manual", slog.String("policy", string(p.policy)))
		return DirectionConflict, "manual"
	}
}

// decideByLatestTimestamp parses "modified" on both sides; the newer wins.
// Ties go to the cloud side. Missing or unparseable timestamps fall back to
// manual (§4.7).
func (p *ConflictPolicy) decideByLatestTimestamp(cloudDoc, localDoc remote.Document) (Direction, string) {
	cloudModified, cloudOK := parseModified(cloudDoc)
	localModified, localOK := parseModified(localDoc)

	if !cloudOK || !localOK {
		return DirectionConflict, "manual"
	}

	if localModified.After(cloudModified) {
		return DirectionLocalToCloud, "local_wins_by_timestamp"
	}

	return DirectionCloudToLocal, "cloud_wins_by_timestamp"
}

func parseModified(doc remote.Document) (time.Time, bool) {
	if doc == nil {
		return time.Time{}, false
	}

	raw := doc.Modified()
	if raw == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// BuildConflictRecord creates an audit-trail ConflictRecord for a divergence
// event. resolved/resolution reflect whatever the automatic policy decided;
// a manual-policy divergence is recorded with resolved=false so the
// `conflicts` CLI command surfaces it until cleared externally (§4.7, §9).
func BuildConflictRecord(doctype, docname string, cloudDoc, localDoc remote.Document, resolved bool, resolution string) *ConflictRecord {
	cloudJSON, _ := json.Marshal(cloudDoc)
	localJSON, _ := json.Marshal(localDoc)

	rec := &ConflictRecord{
		ID:            uuid.NewString(),
		Doctype:       doctype,
		Docname:       docname,
		CloudSnapshot: string(cloudJSON),
		LocalSnapshot: string(localJSON),
		CloudModified: cloudDoc.Modified(),
		LocalModified: localDoc.Modified(),
		Resolved:      resolved,
		Resolution:    resolution,
		CreatedAt:     time.Now().UTC(),
	}

	if resolved {
		now := time.Now().UTC()
		rec.ResolvedAt = &now
	}

	return rec
}
