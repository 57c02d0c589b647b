package messaging

import "slices"

// Merge builds the working message set from the live feed and the archive.
// Live messages come first, then archived ones; when two messages share an
// exact timestamp the first one seen is kept. Messages without a timestamp
// are dropped.
func Merge(live, archived []Message) []Message {
	seen := make(map[string]struct{}, len(live)+len(archived))
	out := make([]Message, 0, len(live)+len(archived))

	for _, m := range slices.Concat(live, archived) {
		if m.Timestamp == "" {
			continue
		}
		if _, dup := seen[m.Timestamp]; dup {
			continue
		}
		seen[m.Timestamp] = struct{}{}
		out = append(out, m)
	}

	return out
}

// SortNewestFirst orders messages by descending timestamp string.
func SortNewestFirst(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
}
