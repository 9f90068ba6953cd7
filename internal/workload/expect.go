package workload

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

type expectation struct {
	path string
	want string
}

// expectations are JSON values a response must carry, checked in path order.
type expectations []expectation

func newExpectations(m map[string]string) expectations {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	out := make(expectations, 0, len(paths))
	for _, path := range paths {
		out = append(out, expectation{path: path, want: m[path]})
	}
	return out
}

// check returns an *ExpectationError for the first value that is missing
// from body or differs.
func (e expectations) check(body []byte) error {
	for _, exp := range e {
		result := gjson.GetBytes(body, jsonPath(exp.path))
		if !result.Exists() {
			return &ExpectationError{Path: exp.path, Want: exp.want, Missing: true}
		}
		if got := result.String(); got != exp.want {
			return &ExpectationError{Path: exp.path, Want: exp.want, Got: got}
		}
	}
	return nil
}

// jsonPath accepts both "$.field" and bare gjson paths.
func jsonPath(path string) string {
	switch {
	case path == "$":
		return "@this"
	case strings.HasPrefix(path, "$."):
		return path[2:]
	default:
		return path
	}
}
