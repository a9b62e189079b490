package domain

import "testing"

func TestParseFingerprint(t *testing.T) {
	tests := []struct {
		in      string
		want    Fingerprint
		wantErr bool
	}{
		{"BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05", "BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05", false},
		{"bcf4173966770193e0c5c7a6b16f6e0a4fb3bc05", "BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05", false},
		{"0xBCF4173966770193E0C5C7A6B16F6E0A4FB3BC05", "BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05", false},
		{"BCF4 1739 6677 0193 E0C5 C7A6 B16F 6E0A 4FB3 BC05", "BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05", false},
		{"b16f6e0a4fb3bc05", "B16F6E0A4FB3BC05", false},
		{"", "", true},
		{"BCF417", "", true},
		{"ZZF4173966770193E0C5C7A6B16F6E0A4FB3BC05", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFingerprint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFingerprint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFingerprint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFingerprintKeyID(t *testing.T) {
	fp := Fingerprint("BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05")
	if got := fp.KeyID(); got != "B16F6E0A4FB3BC05" {
		t.Errorf("KeyID() = %s, want B16F6E0A4FB3BC05", got)
	}

	short := Fingerprint("B16F6E0A4FB3BC05")
	if got := short.KeyID(); got != "B16F6E0A4FB3BC05" {
		t.Errorf("KeyID() on long id = %s, want itself", got)
	}
}
