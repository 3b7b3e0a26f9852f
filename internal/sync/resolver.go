package sync

import "github.com/fossengine/docsync-go/internal/remote"

// Resolve is the pure direction-resolution function of §4.3: given the
// current cloud document C (nil if absent), the current local document L
// (nil if absent), and the persisted sync record R, it decides whether a
// sync is needed and in which direction.
//
// hint, if non-empty, is the direction a webhook suggested (derived from its
// source per §4.6). The decision table is authoritative regardless of hint —
// a spurious webhook can never force a direction the hashes don't support.
func Resolve(cloudDoc, localDoc remote.Document, rec *SyncRecord, excluded []string, hint Direction) Direction {
	hC := remote.Hash(cloudDoc, excluded)
	hL := remote.Hash(localDoc, excluded)

	return resolveFromHashes(cloudDoc, localDoc, rec, hC, hL)
}

func resolveFromHashes(cloudDoc, localDoc remote.Document, rec *SyncRecord, hC, hL string) Direction {
	if cloudDoc == nil && localDoc == nil {
		return DirectionNone
	}

	if cloudDoc != nil && localDoc == nil {
		return DirectionCloudToLocal
	}

	if cloudDoc == nil && localDoc != nil {
		return DirectionLocalToCloud
	}

	cloudChanged := hC != rec.CloudHash
	localChanged := hL != rec.LocalHash

	switch {
	case !cloudChanged && !localChanged:
		return DirectionNone
	case cloudChanged && !localChanged:
		return DirectionCloudToLocal
	case !cloudChanged && localChanged:
		return DirectionLocalToCloud
	default:
		return DirectionConflict
	}
}
