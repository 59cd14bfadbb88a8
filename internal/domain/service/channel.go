package service

// DiffChannel tracks one output channel (reasoning or content) as the pair
// (raw accumulator projection, yielded length). The caller re-presents the
// FULL raw text for the channel after every upstream delta; Advance cleans
// it and returns only the suffix beyond what was already emitted, so no
// character ships twice even though cleaning re-runs from the start each
// time.
type DiffChannel struct {
	yielded int
	post    func(string) string
}

// NewDiffChannel creates a channel. post, when non-nil, transforms emitted
// suffixes after the diff is taken (e.g. LatexToUnicode); it never feeds
// back into the yielded-length accounting.
func NewDiffChannel(post func(string) string) *DiffChannel {
	return &DiffChannel{post: post}
}

// Advance recomputes the cleaned projection of raw and returns the unsent
// suffix, advancing the yielded mark. It returns "" while the projection
// has not grown past the mark.
func (c *DiffChannel) Advance(raw string) string {
	cleaned := CleanText(raw)
	if len(cleaned) <= c.yielded {
		return ""
	}
	suffix := cleaned[c.yielded:]
	c.yielded = len(cleaned)
	if c.post != nil {
		suffix = c.post(suffix)
	}
	return suffix
}

// Yielded reports how many cleaned bytes have been emitted so far.
func (c *DiffChannel) Yielded() int {
	return c.yielded
}

// Active reports whether the channel has emitted anything.
func (c *DiffChannel) Active() bool {
	return c.yielded > 0
}
