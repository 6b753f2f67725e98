package llm

// DetectToolCalls decides whether a completed turn is a tool-call request
// or a terminal answer. It is a pure function of the finish reason and the
// parsed calls, isolated here because finish-reason vocabularies differ
// between providers: an explicit tool-use finish reason counts, as does an
// unset one (some providers omit it when calls are present). A turn that
// finished with a plain stop is terminal even if stray calls parsed.
func DetectToolCalls(c *Completion) []ToolCall {
	if c == nil || len(c.ToolCalls) == 0 {
		return nil
	}
	switch c.FinishReason {
	case FinishToolCalls, "":
		return c.ToolCalls
	default:
		return nil
	}
}
