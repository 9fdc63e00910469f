package codec

import "testing"

type testPayload struct {
	Name string `json:"name"`
}

func TestRegistry_EncodeDecodeRoundTrip(t *testing.T) {
	r := NewRegistry()
	Register[testPayload](r, "TestEventHappened")

	want := testPayload{Name: "alpha"}
	b, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := r.Decode("TestEventHappened", b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	p, ok := got.(*testPayload)
	if !ok {
		t.Fatalf("Decode() type = %T, want *testPayload", got)
	}
	if p.Name != want.Name {
		t.Errorf("Name = %q, want %q", p.Name, want.Name)
	}
}

func TestRegistry_Decode_UnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Decode("NoSuchEvent", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestRegistry_Decode_ToleratesUnknownFields(t *testing.T) {
	r := NewRegistry()
	Register[testPayload](r, "TestEventHappened")

	got, err := r.Decode("TestEventHappened", []byte(`{"name":"beta","extra_future_field":123}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.(*testPayload).Name != "beta" {
		t.Errorf("Name = %q, want beta", got.(*testPayload).Name)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	p := testPayload{Name: "gamma"}
	a, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("Encode() not deterministic: %s != %s", a, b)
	}
}

func TestRegistry_Registered(t *testing.T) {
	r := NewRegistry()
	Register[testPayload](r, "TestEventHappened")

	if !r.Registered("TestEventHappened") {
		t.Error("expected TestEventHappened to be registered")
	}
	if r.Registered("Unregistered") {
		t.Error("did not expect Unregistered to be registered")
	}
}
