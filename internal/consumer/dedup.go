package consumer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/social-eventfabric/realtime/internal/domain"
)

// DedupKey returns the stable identity used to suppress duplicate
// delivery of ev. When the bus supplied a message ID it is used as-is;
// otherwise a 128-bit hash is derived from a canonical (key-sorted)
// encoding of the event body so that two byte-for-byte-different but
// semantically identical deliveries still collide.
func DedupKey(ev *domain.Event) string {
	if ev.MessageID != "" {
		return ev.MessageID
	}
	canonical := canonicalize(ev.Body)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:16])
}

func canonicalize(v interface{}) []byte {
	b, err := json.Marshal(sortKeys(v))
	if err != nil {
		return nil
	}
	return b
}

// sortKeys recursively rebuilds maps using a slice of sorted key/value
// pairs so json.Marshal's output is stable regardless of Go map
// iteration order. Go's encoding/json already sorts map[string]T keys on
// marshal, so this mainly documents the invariant the dedup key depends
// on; kept explicit so a future switch to an unordered encoder doesn't
// silently break determinism.
func sortKeys(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]interface{}, len(m))
	for _, k := range keys {
		out[k] = sortKeys(m[k])
	}
	return out
}
