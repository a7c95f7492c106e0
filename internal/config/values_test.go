package config

import (
	"testing"
	"time"
)

func TestValuesCoverMetadata(t *testing.T) {
	s := DefaultSettings()
	meta := GetSettingsMetadata()
	for _, cat := range CategoryOrder() {
		values := Values(s, cat)
		for _, m := range meta[cat] {
			if _, ok := values[m.Key]; !ok {
				t.Errorf("%s: no value for %q", cat, m.Key)
			}
		}
	}
}

func TestSetValue(t *testing.T) {
	tests := []struct {
		key, value string
		check      func(*Settings) bool
		wantErr    bool
	}{
		{"direct_download_only", "true", func(s *Settings) bool { return s.General.DirectDownloadOnly }, false},
		{"console_lines", "50", func(s *Settings) bool { return s.General.ConsoleLines == 50 }, false},
		{"bundle_id", "com.example.game", func(s *Settings) bool { return s.App.BundleID == "com.example.game" }, false},
		{"log_reset_wait", "90s", func(s *Settings) bool { return s.Timings.LogResetWait == 90*time.Second }, false},
		{"transfer_stall_timeout", "45s", func(s *Settings) bool { return s.Timings.TransferStall == 45*time.Second }, false},
		{"max_transfer_retries", "0", func(s *Settings) bool { return s.Timings.MaxTransferRetries == 0 }, false},
		{"relaunch_after", "maybe", nil, true},
		{"signal_wait", "soon", nil, true},
		{"no_such_key", "1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := DefaultSettings()
			err := SetValue(s, tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SetValue: %v", err)
			}
			if !tt.check(s) {
				t.Errorf("%s not applied", tt.key)
			}
		})
	}
}
