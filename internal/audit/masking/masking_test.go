package masking

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"abc":                  "****",
		"abcd":                 "****",
		"super-secret-token-1": "****en-1",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskDetailsRedactsSensitiveKeys(t *testing.T) {
	out := MaskDetails(map[string]any{
		"email":        "user@example.com",
		"invite_token": "very-long-raw-token",
		"Password":     "hunter22",
		"count":        3,
		"nested": map[string]any{
			"secret": "nested-value",
			"role":   "ADMIN",
		},
	})

	if out["email"] != "user@example.com" {
		t.Fatalf("email should pass through, got %v", out["email"])
	}
	if out["invite_token"] != "****oken" {
		t.Fatalf("invite_token not masked: %v", out["invite_token"])
	}
	if out["Password"] != "****er22" {
		t.Fatalf("Password not masked: %v", out["Password"])
	}
	if out["count"] != 3 {
		t.Fatalf("non-string values should pass through, got %v", out["count"])
	}

	nested := out["nested"].(map[string]any)
	if nested["secret"] != "****alue" {
		t.Fatalf("nested secret not masked: %v", nested["secret"])
	}
	if nested["role"] != "ADMIN" {
		t.Fatalf("nested role should pass through: %v", nested["role"])
	}
}

func TestMaskDetailsEmpty(t *testing.T) {
	if out := MaskDetails(nil); out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
	if out := MaskDetails(map[string]any{}); out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}
