// Package config provides configuration loading and parsing for crankbench.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first of candidates present in settings, trying
// each key as written and lowercased.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

// blank reports whether value is nil or a whitespace-only string. Blank
// settings decode to the zero value.
func blank(value interface{}) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func asString(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	if b, ok := value.([]byte); ok {
		return string(b), nil
	}
	if s, err := cast.ToStringE(value); err == nil {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

func asInt(value interface{}) (int, error) {
	if blank(value) {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	i, err := cast.ToIntE(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported numeric value %v: %w", value, err)
	}
	return i, nil
}

func asFloat64(value interface{}) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported float value %v: %w", value, err)
	}
	return f, nil
}

func asBool(value interface{}) (bool, error) {
	if blank(value) {
		return false, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	b, err := cast.ToBoolE(value)
	if err != nil {
		return false, fmt.Errorf("unsupported boolean value %v: %w", value, err)
	}
	return b, nil
}

// asDuration accepts Go duration strings. Bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	if blank(value) {
		return 0, nil
	}
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		return time.ParseDuration(strings.TrimSpace(v))
	}
	secs, err := cast.ToInt64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration value %v: %w", value, err)
	}
	return time.Duration(secs) * time.Second, nil
}

// asStringMap decodes header and expectation tables. Keys must not be empty.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported map value %T: %w", value, err)
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("map key cannot be empty")
		}
		result[k] = v
	}
	return result, nil
}

// asStringSlice decodes a list of strings. A single string becomes a
// one-element list so a command path survives intact.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	}
	items, err := cast.ToStringSliceE(value)
	if err != nil {
		return nil, fmt.Errorf("unsupported string list %T: %w", value, err)
	}
	return items, nil
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, fmt.Errorf("expected list, got %T", value)
	}
	return items, nil
}

// toStringKeyMap lowercases and trims every key.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	result := make(map[string]interface{}, len(m))
	for key, val := range m {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
