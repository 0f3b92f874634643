// ABOUTME: Unit tests for API key checking, scheme parsing, and key masking
// ABOUTME: Covers key rotation, the sk- prefix rule, and the empty key set

package auth

import (
	"errors"
	"testing"
)

func TestAPIKeys_Check(t *testing.T) {
	keys := NewAPIKeys(true, "sk-primary-0001", " ", "sk-rotated-0002")

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "primary", key: "sk-primary-0001"},
		{name: "rotation key", key: "sk-rotated-0002"},
		{name: "empty", key: "", wantErr: ErrMissingAPIKey},
		{name: "no prefix", key: "primary-0001", wantErr: ErrAPIKeyPrefix},
		{name: "unknown", key: "sk-unknown", wantErr: ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller, err := keys.Check(tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Check() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if caller.Scheme != SchemeAPIKey || caller.Subject != MaskAPIKey(tt.key) {
				t.Errorf("Check() caller = %+v", caller)
			}
		})
	}
}

func TestAPIKeys_PrefixOptional(t *testing.T) {
	keys := NewAPIKeys(false, "legacy-key")
	if _, err := keys.Check("legacy-key"); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestAPIKeys_NoneConfigured(t *testing.T) {
	if _, err := NewAPIKeys(true).Check("sk-anything"); !errors.Is(err, ErrNoAPIKeysLoaded) {
		t.Errorf("Check() error = %v, want ErrNoAPIKeysLoaded", err)
	}
}

func TestParseScheme(t *testing.T) {
	for in, want := range map[string]Scheme{"": SchemeAPIKey, "api_key": SchemeAPIKey, "Bearer": SchemeBearer} {
		got, err := ParseScheme(in)
		if err != nil || got != want {
			t.Errorf("ParseScheme(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseScheme("basic"); err == nil {
		t.Error("ParseScheme(basic) should fail")
	}
}

func TestCheckAPIKeyFormat(t *testing.T) {
	if err := CheckAPIKeyFormat("sk-abc"); err != nil {
		t.Errorf("CheckAPIKeyFormat(sk-abc) = %v", err)
	}
	if err := CheckAPIKeyFormat("abc"); !errors.Is(err, ErrAPIKeyPrefix) {
		t.Errorf("CheckAPIKeyFormat(abc) = %v, want ErrAPIKeyPrefix", err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey("sk-0123456789abcdef"); got != "sk-0123456..." {
		t.Errorf("MaskAPIKey() = %q", got)
	}
	if got := MaskAPIKey("sk-short"); got != "sk-short" {
		t.Errorf("MaskAPIKey() = %q", got)
	}
}
