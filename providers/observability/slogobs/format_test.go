package slogobs

import (
	"errors"
	"testing"
)

func TestLookupFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"compact", FormatCompact, false},
		{"PRETTY", FormatPretty, false},
		{" json ", FormatJSON, false},
		{"xml", FormatCompact, true},
		{"", FormatCompact, true},
	}

	for _, tt := range tests {
		got, err := LookupFormat(tt.input)
		if got != tt.want {
			t.Errorf("LookupFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if tt.wantErr != errors.Is(err, ErrUnknownFormat) {
			t.Errorf("LookupFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if ParseFormat(tt.input) != tt.want {
			t.Errorf("ParseFormat(%q) disagrees with LookupFormat", tt.input)
		}
	}
}

func TestFormats(t *testing.T) {
	list := Formats()
	if len(list) != 3 || list[0] != FormatCompact {
		t.Fatalf("Formats() = %v", list)
	}
	list[0] = "changed"
	if Formats()[0] != FormatCompact {
		t.Error("Formats() exposed the internal slice")
	}
}

func TestGetFormatFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		mule     string
		generic  string
		expected Format
	}{
		{"MULE_LOG_FORMAT takes precedence", "pretty", "json", FormatPretty},
		{"fallback to LOG_FORMAT", "", "json", FormatJSON},
		{"default to compact", "", "", FormatCompact},
		{"unknown falls back to compact", "yaml", "", FormatCompact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogFormat, tt.mule)
			t.Setenv(EnvLogFormatFallback, tt.generic)

			if result := GetFormatFromEnv(); result != tt.expected {
				t.Errorf("GetFormatFromEnv() = %v, want %v", result, tt.expected)
			}
		})
	}
}
