package agent

import "strings"

// DefaultSentinels are control markers that generation backends leak into
// reply text.
var DefaultSentinels = []string{"<s>", "<|im_start|>", "<|im_end|>", "<|OUT|>"}

// sentinelFilter removes markers from a stream of fragments. A fragment
// tail that could be the start of a marker is held back until the next
// fragment (or Flush) resolves it, so markers split across fragments are
// removed too.
type sentinelFilter struct {
	replacer *strings.Replacer
	markers  []string
	pending  string
}

func newSentinelFilter(markers []string) *sentinelFilter {
	seen := make(map[string]bool, len(markers))
	var uniq []string
	for _, m := range markers {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		uniq = append(uniq, m)
	}
	pairs := make([]string, 0, 2*len(uniq))
	for _, m := range uniq {
		pairs = append(pairs, m, "")
	}
	return &sentinelFilter{
		replacer: strings.NewReplacer(pairs...),
		markers:  uniq,
	}
}

// Push adds a fragment and returns the text that is safe to display.
func (f *sentinelFilter) Push(fragment string) string {
	s := f.clean(f.pending + fragment)
	hold := f.partialSuffix(s)
	f.pending = s[len(s)-hold:]
	return s[:len(s)-hold]
}

// Flush returns whatever is still held back. A held-back partial marker
// that never completed is ordinary text.
func (f *sentinelFilter) Flush() string {
	s := f.clean(f.pending)
	f.pending = ""
	return s
}

// clean strips markers until none remain; removing one can join the text
// around it into another.
func (f *sentinelFilter) clean(s string) string {
	if len(f.markers) == 0 {
		return s
	}
	for {
		r := f.replacer.Replace(s)
		if r == s {
			return s
		}
		s = r
	}
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of some marker.
func (f *sentinelFilter) partialSuffix(s string) int {
	best := 0
	for _, m := range f.markers {
		n := min(len(m)-1, len(s))
		for k := n; k > best; k-- {
			if strings.HasSuffix(s, m[:k]) {
				best = k
				break
			}
		}
	}
	return best
}

// StripSentinels removes markers from complete text.
func StripSentinels(text string, markers []string) string {
	return newSentinelFilter(markers).clean(text)
}
