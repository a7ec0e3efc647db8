package sync

import "splitledger/internal/remote"

// Resolve merges one incoming remote record with the local state and the
// baseline shared at the last sync. The policy is field-level remote trump:
// a field changed remotely (relative to the baseline) takes the remote
// value, a field changed only locally keeps the local value, and when both
// sides changed the same field the remote value wins. This is deliberately
// not whole-record last-writer-wins: two non-overlapping field edits made on
// two devices both survive.
//
// Deletions are record-level. A remote tombstone wins over local edits. A
// local tombstone stands only if the remote record is unchanged since the
// baseline; a remote edit resurrects the entity with the remote state.
func Resolve(local, base *remote.Record, incoming remote.Record) remote.Record {
	// Nothing local: take the remote state as-is.
	if local == nil {
		return incoming.Clone()
	}

	if incoming.Deleted {
		return incoming.Clone()
	}

	if local.Deleted {
		if base == nil || fieldsChanged(incoming, *base) {
			return incoming.Clone()
		}
		return local.Clone()
	}

	// Without a baseline there is no way to tell which side changed what;
	// the remote copy is authoritative.
	if base == nil {
		return incoming.Clone()
	}

	merged := incoming.Clone()
	for key := range keyUnion(local.Fields, base.Fields, incoming.Fields) {
		remoteVal, remoteHas := incoming.Fields[key]
		baseVal := base.Fields[key]
		if remoteHas && remoteVal != baseVal {
			// Remote changed this field: remote value trumps.
			merged.Fields[key] = remoteVal
			continue
		}
		if localVal, ok := local.Fields[key]; ok {
			merged.Fields[key] = localVal
		} else {
			delete(merged.Fields, key)
		}
	}
	return merged
}

func fieldsChanged(a, b remote.Record) bool {
	if a.Deleted != b.Deleted || len(a.Fields) != len(b.Fields) {
		return true
	}
	for k, v := range a.Fields {
		if b.Fields[k] != v {
			return true
		}
	}
	return false
}

func keyUnion(maps ...map[string]string) map[string]struct{} {
	union := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			union[k] = struct{}{}
		}
	}
	return union
}
