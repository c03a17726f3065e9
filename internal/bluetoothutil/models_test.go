package bluetoothutil

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

func TestModelUUIDsAreDistinct(t *testing.T) {
	seen := map[bluetooth.UUID]string{}
	for _, m := range Models() {
		if m.Service == m.TxRx {
			t.Fatalf("%s: service and characteristic must differ", m.Name)
		}
		for _, u := range []bluetooth.UUID{m.Service, m.TxRx} {
			if other, ok := seen[u]; ok {
				t.Fatalf("%s reuses UUID %s of %s", m.Name, u, other)
			}
			seen[u] = m.Name
		}
	}
}

func TestModelByName(t *testing.T) {
	m, ok := ModelByName(" ScanWatch2 ")
	if !ok || m.Service.String() != "00000020-5749-5448-005e-000000000000" {
		t.Fatalf("unexpected model %+v ok=%v", m, ok)
	}
	if _, ok := ModelByName("fitbit"); ok {
		t.Fatalf("unknown model must not resolve")
	}
}

func TestMatchModel(t *testing.T) {
	body, _ := ModelByName("body_plus")
	got, ok := matchModel(Models(), func(u bluetooth.UUID) bool { return u == body.Service })
	if !ok || got.Name != "body_plus" {
		t.Fatalf("expected body_plus, got %+v ok=%v", got, ok)
	}
	if _, ok := matchModel(Models(), func(bluetooth.UUID) bool { return false }); ok {
		t.Fatalf("expected no match")
	}
}

func TestMustParseUUIDPanicsOnInvalidValue(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid UUID")
		}
	}()
	_ = mustParseUUID("not-a-uuid")
}
