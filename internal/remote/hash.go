package remote

import (
	"crypto/md5" //nolint:gosec // canonical content hash, not a security primitive
	"encoding/hex"
	"encoding/json"
	"sort"
)

// DefaultExcludedFields are stripped from every document before hashing, in
// addition to whatever extra fields the caller passes to Hash.
var DefaultExcludedFields = []string{
	"modified",
	"modified_by",
	"creation",
	"owner",
	"idx",
	"docstatus",
}

// Hash computes the canonical content hash of doc: every field named in
// excluded or in DefaultExcludedFields (case-sensitive) is removed, the
// remaining field bag is
// serialized as JSON with keys sorted lexicographically and no whitespace,
// and the MD5 digest of that byte string is returned as lowercase hex.
//
// The result is stable across repeated calls on equivalent documents,
// independent of the original key order of doc.
func Hash(doc Document, excluded []string) string {
	if doc == nil {
		return ""
	}

	skip := make(map[string]struct{}, len(excluded)+len(DefaultExcludedFields))
	for _, f := range DefaultExcludedFields {
		skip[f] = struct{}{}
	}

	for _, f := range excluded {
		skip[f] = struct{}{}
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		if _, excludedField := skip[k]; excludedField {
			continue
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	canonical := make(map[string]any, len(keys))
	for _, k := range keys {
		canonical[k] = doc[k]
	}

	buf := marshalSorted(keys, canonical)

	sum := md5.Sum(buf) //nolint:gosec // see above

	return hex.EncodeToString(sum[:])
}

// marshalSorted serializes canonical as a JSON object. The key order comes
// from encoding/json, which writes map keys in lexicographic order; that is
// the order of keys, but keys itself is not consulted.
func marshalSorted(keys []string, canonical map[string]any) []byte {
	b, err := json.Marshal(canonical)
	if err != nil {
		// Document fields are JSON-compatible values by contract (§3); a
		// marshal failure here means the caller violated that contract.
		return []byte("{}")
	}

	return b
}
