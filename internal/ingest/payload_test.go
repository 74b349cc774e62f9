package ingest

import "testing"

func TestExtractFirstU64(t *testing.T) {
	cases := []struct {
		payload string
		want    uint64
		ok      bool
	}{
		{"[123]", 123, true},
		{"[123, 456]", 123, true},
		{"[]", 0, false},
		{"not-a-payload", 0, false},
	}

	for _, tc := range cases {
		got, ok := extractFirstU64(tc.payload)
		if ok != tc.ok || got != tc.want {
			t.Errorf("extractFirstU64(%q) = (%d, %v), want (%d, %v)", tc.payload, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtractTwoU64(t *testing.T) {
	a, b, ok := extractTwoU64("[42, 7]")
	if !ok || a != 42 || b != 7 {
		t.Errorf("extractTwoU64 = (%d, %d, %v), want (42, 7, true)", a, b, ok)
	}

	if _, _, ok := extractTwoU64("[42]"); ok {
		t.Errorf("expected extractTwoU64 to fail on a single-field payload")
	}
}

func TestExtractTwoIdentifiers(t *testing.T) {
	id, addr, ok := extractTwoIdentifiers(`[7, "5GrwvaEF"]`)
	if !ok || id != 7 || addr != "5GrwvaEF" {
		t.Errorf("extractTwoIdentifiers = (%d, %q, %v), want (7, \"5GrwvaEF\", true)", id, addr, ok)
	}
}

func TestIsSupported(t *testing.T) {
	if !isSupported("TaskMarket", "TaskCreated") {
		t.Errorf("expected TaskMarket::TaskCreated to be supported")
	}
	if isSupported("TaskMarket", "SomethingElse") {
		t.Errorf("expected unknown variant to be unsupported")
	}
	if isSupported("UnknownPallet", "TaskCreated") {
		t.Errorf("expected unknown pallet to be unsupported")
	}
}
