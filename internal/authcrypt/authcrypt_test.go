package authcrypt

import (
	"errors"
	"testing"
)

func TestEncrypt_knownVectors(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		key       string
		want      string
	}{
		{"short key padded", "hello", "1234", "D61D582E876AA4AD"},
		{"aligned input gains a block", "12345678", "12345678", "96D0028878D58C89FEB959B7D4642FCB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encrypt(tt.plaintext, tt.key)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Encrypt(%q, %q) = %q, want %q", tt.plaintext, tt.key, got, tt.want)
			}
		})
	}
}

func TestEncrypt_deterministic(t *testing.T) {
	p := "12345678$TOKEN$user$stb$10.0.0.2$00:11:22:33:44:55$CTC"
	a, err := Encrypt(p, "abc")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Encrypt(p, "abc")
	if a != b {
		t.Errorf("same input gave %q then %q", a, b)
	}
	if c, _ := Encrypt(p+"x", "abc"); c == a {
		t.Error("different plaintext gave same signature")
	}
	if d, _ := Encrypt(p, "abd"); d == a {
		t.Error("different key gave same signature")
	}
}

func TestEncrypt_keyTooLong(t *testing.T) {
	_, err := Encrypt("x", "123456789")
	if !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("err = %v, want ErrKeyTooLong", err)
	}
}

func TestPadKey(t *testing.T) {
	for key, want := range map[string]string{"": "00000000", "12": "12000000", "abcdefgh": "abcdefgh"} {
		got, err := PadKey(key)
		if err != nil || got != want {
			t.Errorf("PadKey(%q) = %q, %v; want %q", key, got, err, want)
		}
	}
}
