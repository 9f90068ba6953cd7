package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

var friendlyAliases = map[string]string{
	"*workload.StatusError":          "HTTP error response",
	"*workload.ExpectationError":     "Response expectation failed",
	"*workload.RPCError":             "gRPC error status",
	"*runner.PanicError":             "Workload panic",
	"*exec.ExitError":                "Command exited non-zero",
	"*url.Error":                     "Request URL error",
	"url.Error":                      "Request URL error",
	"*errors.errorString":            "Error",
	"*fmt.wrapError":                 "Error",
	"*context.deadlineExceededError": "Context deadline exceeded",
	"context.deadlineExceededError":  "Context deadline exceeded",
}

// ErrorTally counts workload failures by a friendly error label. The zero
// value is ready to use.
type ErrorTally struct {
	mu     sync.Mutex
	counts map[string]int64
}

// Record counts err under FriendlyErrorName of its dynamic type.
func (t *ErrorTally) Record(err error) {
	if err == nil {
		return
	}
	label := FriendlyErrorName(fmt.Sprintf("%T", err))
	t.mu.Lock()
	if t.counts == nil {
		t.counts = make(map[string]int64)
	}
	t.counts[label]++
	t.mu.Unlock()
}

// Counts returns a copy of the tally, or nil when nothing was recorded.
func (t *ErrorTally) Counts() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.counts) == 0 {
		return nil
	}
	out := make(map[string]int64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// ErrorRow is one entry of a sorted error breakdown.
type ErrorRow struct {
	Label string
	Count int64
}

// SortedErrors flattens a tally into rows ordered by descending count, then label.
func SortedErrors(counts map[string]int64) []ErrorRow {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]ErrorRow, 0, len(counts))
	for label, count := range counts {
		rows = append(rows, ErrorRow{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// FriendlyErrorName returns a human-friendly label for a Go error type.
func FriendlyErrorName(typeName string) string {
	cleaned := strings.TrimSpace(typeName)
	if cleaned == "" {
		return "Unknown error"
	}

	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}

	cleaned = strings.TrimPrefix(cleaned, "*")
	if alias, ok := friendlyAliases[cleaned]; ok {
		return alias
	}
	if idx := strings.LastIndex(cleaned, "/"); idx != -1 {
		cleaned = cleaned[idx+1:]
	}

	pkg := ""
	name := cleaned
	if idx := strings.Index(name, "."); idx != -1 {
		pkg = name[:idx]
		name = name[idx+1:]
	}

	pretty := humanizeTypeName(name)
	if pretty == "" {
		pretty = name
	}

	lowerPkg := strings.ToLower(pkg)
	lowerPretty := strings.ToLower(pretty)

	switch {
	case lowerPkg == "context" && strings.Contains(lowerPretty, "deadline"):
		return "Context deadline exceeded"
	case lowerPkg == "workload" && strings.Contains(lowerPretty, "status error"):
		return "HTTP error response"
	case lowerPkg == "url" && strings.Contains(lowerPretty, "error"):
		return "Request URL error"
	}

	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

func humanizeTypeName(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current []rune
	runes := []rune(name)

	appendWord := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if isAllUpper(word) {
			words = append(words, word)
		} else {
			words = append(words, capitalize(word))
		}
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				appendWord()
			} else if unicode.IsDigit(r) && !unicode.IsDigit(prev) {
				appendWord()
			}
		}
		current = append(current, r)
	}
	appendWord()

	return strings.Join(words, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
