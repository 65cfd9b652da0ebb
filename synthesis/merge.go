package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"videodocs/core"
)

// FailedFragmentDoc is the placeholder body used when a segment's
// generation failed. The merge keeps the section so the final document
// stays complete and gap-free.
const FailedFragmentDoc = "_Documentation for this segment could not be generated._"

// MergeFragments assembles per-segment fragments into one document,
// ordered by segment index regardless of completion order. An empty
// set of fragments, or a set where every fragment failed, is an error.
func MergeFragments(title string, fragments []core.SegmentFragment) (string, error) {
	if len(fragments) == 0 {
		return "", &core.SegmentMergeError{Err: fmt.Errorf("no fragments to merge")}
	}

	ordered := make([]core.SegmentFragment, len(fragments))
	copy(ordered, fragments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	allFailed := true
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for _, f := range ordered {
		doc := strings.TrimSpace(f.Doc)
		if doc == "" {
			doc = FailedFragmentDoc
		}
		if doc != FailedFragmentDoc {
			allFailed = false
		}
		fmt.Fprintf(&b, "## %s - %s\n\n%s\n\n", clock(f.Start), clock(f.End), doc)
	}
	if allFailed {
		return "", &core.SegmentMergeError{Err: fmt.Errorf("all %d segments failed", len(ordered))}
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}

func clock(sec float64) string {
	total := int(sec)
	if total < 0 {
		total = 0
	}
	m := total / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
