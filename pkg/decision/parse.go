package decision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrMalformedOutput marks model output that could not be decoded even
// after fallback extraction.
var ErrMalformedOutput = fmt.Errorf("malformed model output")

// DecodeModelJSON decodes free-text model output into v. It tries the
// raw text first, then a fenced code block, then the outermost JSON
// object. Failures are reported as a single tagged error rather than a
// chain of guesses.
func DecodeModelJSON(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if block, ok := extractFencedBlock(trimmed); ok {
		if err := json.Unmarshal([]byte(block), v); err == nil {
			return nil
		}
	}

	if obj, ok := extractObject(trimmed); ok {
		if err := json.Unmarshal([]byte(obj), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: no decodable JSON found", ErrMalformedOutput)
}

// extractFencedBlock returns the contents of the first ``` fenced block,
// tolerating a language tag on the opening fence.
func extractFencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]

	// Skip the language tag line, if any.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.HasPrefix(firstLine, "{") && !strings.HasPrefix(firstLine, "[") {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractObject returns the substring from the first '{' to the last '}'.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
