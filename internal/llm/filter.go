package llm

// FilterMode selects which turns of a conversation are visible in the
// delivered stream.
//
// FilterAll forwards every turn's events as they arrive (eager). FilterFinal
// delivers only the terminal answer turn: intermediate tool-call turns are
// held back, which requires buffering each turn until its completion is
// known, since whether a turn is terminal depends on its finish reason.
type FilterMode int

const (
	FilterAll FilterMode = iota
	FilterFinal
)

func (m FilterMode) String() string {
	if m == FilterFinal {
		return "final"
	}
	return "all"
}

// Buffered reports whether turns must be held until aggregation resolves.
func (m FilterMode) Buffered() bool {
	return m == FilterFinal
}

// ShouldEmit decides, once a turn's completion is known, whether that
// turn's events belong in the delivered stream.
func (m FilterMode) ShouldEmit(c *Completion) bool {
	if m == FilterAll {
		return true
	}
	return len(DetectToolCalls(c)) == 0
}
