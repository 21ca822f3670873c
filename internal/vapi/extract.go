package vapi

import "strings"

// The vendor nests the call identity differently across event shapes.
// Rather than scattering optional chaining through the handlers, extraction
// is an explicit ordered list of strategies tried in sequence against the
// generic payload; the first non-empty match wins.

type idStrategy struct {
	name string
	path []string
}

var callIDStrategies = []idStrategy{
	{name: "call.id", path: []string{"call", "id"}},
	{name: "callId", path: []string{"callId"}},
	{name: "id", path: []string{"id"}},
	{name: "data.call.id", path: []string{"data", "call", "id"}},
}

// ExtractCallID returns the vendor call identity found in payload, if any.
func ExtractCallID(payload map[string]any) (string, bool) {
	for _, s := range callIDStrategies {
		if id, ok := lookupString(payload, s.path); ok {
			return id, true
		}
	}
	return "", false
}

// lookupString walks a path of nested map keys and returns the trimmed
// string leaf, rejecting empty values.
func lookupString(m map[string]any, path []string) (string, bool) {
	cur := any(m)
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = node[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}
