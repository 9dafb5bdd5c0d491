package config

import "testing"

func TestParseBool(t *testing.T) {
	tests := []struct {
		input   string
		def     bool
		want    bool
		wantErr bool
	}{
		{"true", false, true, false},
		{"YES", false, true, false},
		{" on\t", false, true, false},
		{"1", false, true, false},
		{"Enabled", false, true, false},
		{"false", true, false, false},
		{"No", true, false, false},
		{"0", true, false, false},
		{"disable", true, false, false},
		{"", true, true, false},
		{"   ", false, false, false},
		{"maybe", false, false, true},
		{"2", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBool(tt.input, tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBool(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%q, %v) = %v, want %v", tt.input, tt.def, got, tt.want)
			}
		})
	}
}

func TestParseBoolDefault(t *testing.T) {
	if !ParseBoolDefault("garbage", true) {
		t.Error("invalid input should fall back to the default")
	}
	if ParseBoolDefault("off", true) {
		t.Error("ParseBoolDefault(off) = true")
	}
}
