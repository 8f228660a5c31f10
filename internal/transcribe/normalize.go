package transcribe

import (
	"encoding/json"
	"fmt"
)

// Normalize reduces a strategy output to text. Strings and bytes are kept as
// they are. Structured values yield their "text" field when they have one and
// their JSON encoding otherwise. Anything that cannot be encoded falls back to
// its fmt form.
func Normalize(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}

	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err == nil {
		if text, ok := fields["text"].(string); ok {
			return text
		}
	}

	return string(encoded)
}
