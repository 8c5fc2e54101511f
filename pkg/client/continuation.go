package client

// Pagination metadata is inconsistent across upstream API generations:
// some responses carry page/pages counters, some a links.next indicator,
// some neither. Continuation is decided by a small ordered strategy list
// evaluated once per page, first applicable strategy winning.

// continuation is the outcome of one continuation decision.
type continuation struct {
	more     bool
	strategy string
}

// decideContinuation inspects a decoded response envelope and reports
// whether another page should be requested.
//
// The size heuristic is best-effort: a final page that happens to hold
// exactly pageSize records triggers one extra (empty) fetch, and an
// exactly-empty final page terminates even if the upstream had more data.
// That tradeoff is inherent to responses carrying no metadata at all.
func decideContinuation(envelope map[string]any, recordCount, pageSize int) continuation {
	if page, ok := intField(envelope, "page"); ok {
		if pages, ok := intField(envelope, "pages"); ok {
			return continuation{more: page < pages, strategy: "counters"}
		}
	}

	if links, ok := envelope["links"].(map[string]any); ok {
		if next, present := links["next"]; present {
			return continuation{more: !isEmptyLink(next), strategy: "next-link"}
		}
	}

	return continuation{
		more:     recordCount > 0 && recordCount == pageSize,
		strategy: "size-heuristic",
	}
}

// isEmptyLink reports whether a links.next value indicates no further page.
func isEmptyLink(v any) bool {
	switch link := v.(type) {
	case nil:
		return true
	case string:
		return link == ""
	case map[string]any:
		// Some generations wrap the link: {"href": "..."}.
		href, _ := link["href"].(string)
		return href == ""
	default:
		return false
	}
}

// intField extracts an integer-valued field from a decoded JSON object.
func intField(envelope map[string]any, key string) (int, bool) {
	switch v := envelope[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
