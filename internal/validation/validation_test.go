package validation

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	rules := NameRules{MinLength: 1, MaxLength: 255, AllowHyphens: true, AllowUnders: true}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "sensor1", false},
		{"with hyphen", "edge-gw", false},
		{"with underscore", "edge_gw", false},
		{"numbers", "123", false},
		{"mixed", "sensor-1_test", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"hidden", ".hidden", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"with dot", "my.sensor", true},
		{"space", "my sensor", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateName_Length(t *testing.T) {
	if err := ValidateFieldName(strings.Repeat("a", 255)); err != nil {
		t.Errorf("255 characters should be valid: %v", err)
	}
	if err := ValidateFieldName(strings.Repeat("a", 256)); err == nil {
		t.Error("256 characters should be rejected")
	}
}

func TestValidateFieldName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"temperature", false},
		{"rpm_max", false},
		{"flow-rate", false},
		{"gps.lat", true},
		{"sensor.1", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateFieldName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFieldName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathSegment(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"sensor.1", false},
		{"192.168.1.1", false},
		{"d1", false},
		{"..", true},
		{".", true},
		{"", true},
		{"../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidatePathSegment(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathSegment(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
