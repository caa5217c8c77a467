package fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"marketcast/internal/content"
)

// decodeReply enforces the reply schema: one JSON object, string keys,
// string values, nothing before or after. Insertion order of the object's
// members is preserved (first entries post first), so the object is walked
// with the token decoder rather than unmarshaled into a map.
func decodeReply(raw string) (content.RawReply, error) {
	raw = stripFences(raw)
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty reply")
	}

	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("reply is not a JSON object (got %v)", tok)
	}

	var out content.RawReply
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading reply key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("reply key is not a string (got %v)", kt)
		}
		vt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading value for %q: %w", key, err)
		}
		val, ok := vt.(string)
		if !ok {
			return nil, fmt.Errorf("value for %q is not a string (got %v)", key, vt)
		}
		out = append(out, content.ReplyItem{Topic: key, Text: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading reply end: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after reply object")
	}
	if len(out) == 0 {
		return nil, errors.New("reply object is empty")
	}
	return out, nil
}

// stripFences tolerates a markdown code fence around the JSON. Models wrap
// replies this way despite instructions; the fence is not part of the schema.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (``` or ```json).
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
