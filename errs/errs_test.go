package errs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestErrorWireRoundTrip(t *testing.T) {
	original := New(ArgumentsNotMatch, "Arguments are not of type (int,int) for method 'Add'")

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Error
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Kind != original.Kind {
		t.Errorf("Kind mismatch: got %v, want %v", decoded.Kind, original.Kind)
	}
	if decoded.Detail != original.Detail {
		t.Errorf("Detail mismatch: got %q, want %q", decoded.Detail, original.Detail)
	}
}

func TestKindMarshalsAsName(t *testing.T) {
	data, err := json.Marshal(&Error{Kind: NoSuchMethod})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"kind":"NoSuchMethod"}` {
		t.Errorf("unexpected wire form: %s", data)
	}
}

func TestUnknownKindFoldsToOther(t *testing.T) {
	var decoded Error
	if err := json.Unmarshal([]byte(`{"kind":"SomethingNew","detail":"x"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Kind != Other {
		t.Errorf("unknown kind should fold to Other, got %v", decoded.Kind)
	}
}

func TestErrorString(t *testing.T) {
	if got := New(SystemIO, "").Error(); got != "srpc: SystemIO" {
		t.Errorf("unexpected message: %q", got)
	}
	if got := New(Other, "boom").Error(); got != "srpc: Other: boom" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := New(ClientNotAvailable, "already closed")
	if !errors.Is(err, &Error{Kind: ClientNotAvailable}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: SystemIO}) {
		t.Error("errors.Is should not match a different kind")
	}
}
