package mindoouri

import (
	"strings"
	"testing"
)

type joinRequest struct {
	V        int    `json:"v"`
	Username string `json:"username"`
}

func TestEncodeParseRoundTrip(t *testing.T) {
	req := joinRequest{V: 1, Username: "alice"}
	uri, err := Encode(TypeJoinRequest, req)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(uri, Scheme+"join-request/") {
		t.Fatalf("unexpected uri shape: %s", uri)
	}

	env, err := Parse(uri)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.Type != TypeJoinRequest {
		t.Fatalf("type = %s, want join-request", env.Type)
	}

	var got joinRequest
	if err := env.Unmarshal(&got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != req {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestEncodeRejectsMissingVersion(t *testing.T) {
	type noVersion struct {
		Username string `json:"username"`
	}
	if _, err := Encode(TypeJoinRequest, noVersion{Username: "bob"}); err == nil {
		t.Fatal("expected error for payload missing v")
	}
}

func TestParseRejectsWrongScheme(t *testing.T) {
	if _, err := Parse("http://join-request/abc"); err == nil {
		t.Fatal("expected error for wrong scheme")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	uri, err := Encode(TypeJoinRequest, joinRequest{V: 1, Username: "x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	bad := strings.Replace(uri, "join-request", "bogus-type", 1)
	if _, err := Parse(bad); err == nil {
		t.Fatal("expected error for unknown payload type")
	}
}

func TestToQRProducesPNGBytes(t *testing.T) {
	uri, err := Encode(TypeJoinResponse, joinRequest{V: 1, Username: "carol"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	png, err := ToQR(uri)
	if err != nil {
		t.Fatalf("ToQR: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("expected non-empty PNG bytes")
	}
	if s, err := ToQRString(uri); err != nil || s == "" {
		t.Fatalf("ToQRString: %q, %v", s, err)
	}
}
