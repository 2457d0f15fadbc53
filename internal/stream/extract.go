package stream

import (
	"encoding/json"
	"strconv"
)

// Extractor looks up the text payload in a decoded JSON object.
// It reports found=false when its field is absent or null, in which case the
// next extractor is consulted.
type Extractor func(obj map[string]any) (value any, found bool)

// DefaultExtractors is the lookup order used for Ollama-style chat frames and
// the simpler {"text": ...} / {"data": ...} shapes.
var DefaultExtractors = []Extractor{
	MessageContent,
	Field("text"),
	Field("data"),
}

// MessageContent extracts message.content.
func MessageContent(obj map[string]any) (any, bool) {
	msg, ok := obj["message"].(map[string]any)
	if !ok {
		return nil, false
	}
	return Field("content")(msg)
}

// Field returns an extractor for a top-level field.
func Field(name string) Extractor {
	return func(obj map[string]any) (any, bool) {
		v, ok := obj[name]
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	}
}

// extract runs the extractors in order. The first present value wins even if
// it turns out to be empty; an empty value yields no text.
func extract(extractors []Extractor, obj map[string]any) (string, bool) {
	for _, ex := range extractors {
		v, found := ex(obj)
		if !found {
			continue
		}
		return textOf(v)
	}
	return "", false
}

func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case bool:
		if !t {
			return "", false
		}
		return "true", true
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return "", false
		}
		return t.String(), true
	case float64:
		if t == 0 {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
