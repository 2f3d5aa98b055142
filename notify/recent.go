package notify

import (
	"sort"

	"pushrelay/push"
)

// CountSince returns how many items were created after last. A zero last
// means nothing was ever seen and counts nothing.
func CountSince(items []push.Item, last float64) int {
	if last == 0 {
		return 0
	}
	n := 0
	for _, it := range items {
		if it.Created > last {
			n++
		}
	}
	return n
}

// Recent returns the undismissed items created after last, oldest first.
func Recent(items []push.Item, last float64) []push.Item {
	out := make([]push.Item, 0, len(items))
	for _, it := range items {
		if it.Created > last && !it.Dismissed {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out
}
