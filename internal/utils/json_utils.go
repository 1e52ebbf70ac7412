package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSONObject unmarshals text into v. Model replies often wrap the
// object in prose or code fences, so on failure the outermost {...} span
// is decoded instead.
func DecodeJSONObject(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return errors.New("no JSON object found in response")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return nil
}
