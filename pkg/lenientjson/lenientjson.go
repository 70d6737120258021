// Package lenientjson decodes JSON out of LLM completions. Models wrap JSON
// in markdown fences, chat around it, leave trailing commas, forget quotes on
// keys, or stop mid-array when the token budget runs out. The repair rules
// here are deliberately small and ordered:
//
//  1. strip markdown code-fence markers,
//  2. trim to the outermost {...} or [...] span,
//  3. remove trailing commas before } and ],
//  4. quote bare object keys,
//  5. close a truncated array after its last complete object.
//
// All functions are pure; nothing here retries or calls out.
package lenientjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceRe       = regexp.MustCompile("```(?:json)?")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// StripFences removes markdown code-fence markers.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// Repair applies the comma and bare-key fixes. It does not trim surrounding
// prose; use DecodeObject or DecodeArray for the full pipeline.
func Repair(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKeyRe.ReplaceAllString(s, `$1"$2":`)
	return s
}

// DecodeObject extracts the outermost JSON object from s, repairs it, and
// unmarshals into v.
func DecodeObject(s string, v any) error {
	s = StripFences(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object found in %q", clip(s))
	}
	s = Repair(s[start : end+1])

	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	return nil
}

// DecodeArray extracts the outermost JSON array from s, repairs it, and
// unmarshals into v. An array truncated mid-element is closed after its last
// complete object.
func DecodeArray(s string, v any) error {
	s = StripFences(s)

	start := strings.Index(s, "[")
	if start < 0 {
		return fmt.Errorf("no JSON array found in %q", clip(s))
	}
	if end := strings.LastIndex(s, "]"); end > start {
		s = s[start : end+1]
	} else {
		s = s[start:]
	}

	s = Repair(s)

	if !strings.HasSuffix(strings.TrimSpace(s), "]") {
		if last := strings.LastIndex(s, "}"); last > 0 {
			s = s[:last+1] + "]"
		}
	}

	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode array: %w", err)
	}
	return nil
}

func clip(s string) string {
	const n = 60
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
