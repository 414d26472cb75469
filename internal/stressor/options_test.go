package stressor

import (
	"testing"

	appErr "stressforge/pkg/errors"
)

var testSchema = Schema{
	"ops":    {Kind: OptInt, Default: "100", Min: 1, Max: 1 << 20},
	"bytes":  {Kind: OptBytes, Default: "4m", Min: 4096, Max: 1 << 30},
	"method": {Kind: OptChoice, Default: "all", Choices: []string{"all", "fast", "slow"}},
	"verify": {Kind: OptBool, Default: "false"},
	"label":  {Kind: OptString, Default: ""},
}

func TestSchemaDefaults(t *testing.T) {
	o, err := testSchema.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Int("ops") != 100 {
		t.Errorf("ops = %d, want 100", o.Int("ops"))
	}
	if o.Bytes("bytes") != 4<<20 {
		t.Errorf("bytes = %d, want %d", o.Bytes("bytes"), 4<<20)
	}
	if o.String("method") != "all" {
		t.Errorf("method = %q, want all", o.String("method"))
	}
	if o.Bool("verify") {
		t.Error("verify default should be false")
	}
}

func TestSchemaParse(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]string
		ok   bool
	}{
		{"valid overrides", map[string]string{"ops": "5000", "bytes": "64k", "method": "fast"}, true},
		{"unknown option", map[string]string{"bogus": "1"}, false},
		{"int below min", map[string]string{"ops": "0"}, false},
		{"int above max", map[string]string{"ops": "9999999"}, false},
		{"not an int", map[string]string{"ops": "ten"}, false},
		{"bytes below min", map[string]string{"bytes": "1k"}, false},
		{"bad size suffix", map[string]string{"bytes": "4x"}, false},
		{"bad choice", map[string]string{"method": "turbo"}, false},
		{"bad bool", map[string]string{"verify": "maybe"}, false},
		{"bool yes", map[string]string{"verify": "true"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testSchema.Parse(tt.raw)
			if tt.ok && err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if appErr.GetCode(err) != appErr.OptionInvalid {
					t.Errorf("code = %v, want OptionInvalid", appErr.GetCode(err))
				}
			}
		})
	}
}

func TestParseBytesSuffixes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"4096", 4096},
		{"64k", 64 << 10},
		{"8m", 8 << 20},
		{"1g", 1 << 30},
		{"2G", 2 << 30},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		if err != nil {
			t.Errorf("parseBytes(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("no-such-stressor")
	if appErr.GetCode(err) != appErr.StressorNotFound {
		t.Fatalf("err = %v, want StressorNotFound", err)
	}
}

func TestExitClassCodes(t *testing.T) {
	tests := []struct {
		class ExitClass
		code  int
	}{
		{Success, appErr.ExitSuccess},
		{ResourceUnavailable, appErr.ExitResourceUnavailable},
		{VerificationFailure, appErr.ExitVerificationFailure},
		{Unimplemented, appErr.ExitUnimplemented},
	}
	for _, tt := range tests {
		if got := tt.class.ExitCode(); got != tt.code {
			t.Errorf("%v.ExitCode() = %d, want %d", tt.class, got, tt.code)
		}
	}
}
