package ingest

import (
	"strconv"
	"strings"
)

// extractFirstU64 parses the leading u64 field out of a chain event's
// debug-style bracketed payload, e.g. "[123]" or "[123, 456]" -> 123.
// Grounded on the reference chain listener's extract_first_u64, which
// the node's event payloads are formatted by (a Rust #[derive(Debug)]
// tuple rendering), not a structured codec.
func extractFirstU64(payload string) (uint64, bool) {
	fields := splitPayloadFields(payload)
	if len(fields) < 1 {
		return 0, false
	}
	return parseU64Field(fields[0])
}

// extractTwoU64 parses the first two u64 fields out of a bracketed
// payload, e.g. "[123, 456]" -> (123, 456). Grounded on
// extract_two_u64 in the reference chain listener.
func extractTwoU64(payload string) (uint64, uint64, bool) {
	fields := splitPayloadFields(payload)
	if len(fields) < 2 {
		return 0, 0, false
	}
	a, ok := parseU64Field(fields[0])
	if !ok {
		return 0, 0, false
	}
	b, ok := parseU64Field(fields[1])
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

// extractTwoIdentifiers parses a leading u64 id followed by a bare
// string field, e.g. `[42, "5GrwvaEF..."]` -> (42, "5GrwvaEF..."), used
// for AgentRegistered's (agent_id, account_address) payload shape.
func extractTwoIdentifiers(payload string) (uint64, string, bool) {
	fields := splitPayloadFields(payload)
	if len(fields) < 2 {
		return 0, "", false
	}
	id, ok := parseU64Field(fields[0])
	if !ok {
		return 0, "", false
	}
	return id, strings.Trim(strings.TrimSpace(fields[1]), `"`), true
}

func splitPayloadFields(payload string) []string {
	trimmed := strings.TrimSpace(payload)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseU64Field(field string) (uint64, bool) {
	n, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
