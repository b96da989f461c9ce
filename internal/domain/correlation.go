package domain

import (
	"strings"

	"github.com/google/uuid"
)

const correlationSep = ":"

// EncodeUUID builds the correlation id the device echoes back for a single
// recipient of a message.
func EncodeUUID(id uuid.UUID, recipient string) string {
	return id.String() + correlationSep + recipient
}

// DecodeUUID extracts the message id from a correlation id. Only the part
// before the first separator is significant. Payloads come from the device,
// so malformed input yields false instead of an error.
func DecodeUUID(s string) (uuid.UUID, bool) {
	prefix, _, found := strings.Cut(strings.TrimSpace(s), correlationSep)
	if !found || prefix == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(prefix)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// DecodeUUIDs decodes and deduplicates a batch of correlation ids, dropping
// anything malformed. Order of first appearance is kept.
func DecodeUUIDs(uuids []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(uuids))
	seen := make(map[uuid.UUID]struct{}, len(uuids))
	for _, s := range uuids {
		id, ok := DecodeUUID(s)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
