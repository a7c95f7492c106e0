package config

import (
	"fmt"
	"strconv"
	"time"
)

// Values returns setting key -> value for a category
func Values(s *Settings, category string) map[string]any {
	values := make(map[string]any)

	switch category {
	case "General":
		values["notifications_enabled"] = s.General.NotificationsEnabled
		values["direct_download_only"] = s.General.DirectDownloadOnly
		values["relaunch_after"] = s.General.RelaunchAfter
		values["console_lines"] = s.General.ConsoleLines
	case "App":
		values["bundle_id"] = s.App.BundleID
		values["app_path"] = s.App.AppPath
		values["container_path"] = s.App.ContainerPath
	case "Network":
		values["user_agent"] = s.Network.UserAgent
		values["proxy_url"] = s.Network.ProxyURL
	case "Timings":
		values["log_reset_wait"] = s.Timings.LogResetWait
		values["signal_wait"] = s.Timings.SignalWait
		values["stuck_recovery"] = s.Timings.StuckRecovery
		values["transfer_stall_timeout"] = s.Timings.TransferStall
		values["max_transfer_retries"] = s.Timings.MaxTransferRetries
	}

	return values
}

// SetValue parses value according to the setting's metadata type and stores it
func SetValue(s *Settings, key, value string) error {
	meta, ok := lookupMeta(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	var (
		b   bool
		n   int
		d   time.Duration
		err error
	)
	switch meta.Type {
	case "bool":
		b, err = strconv.ParseBool(value)
	case "int":
		n, err = strconv.Atoi(value)
	case "duration":
		d, err = time.ParseDuration(value)
	}
	if err != nil {
		return fmt.Errorf("%s: invalid %s %q", key, meta.Type, value)
	}

	switch key {
	case "notifications_enabled":
		s.General.NotificationsEnabled = b
	case "direct_download_only":
		s.General.DirectDownloadOnly = b
	case "relaunch_after":
		s.General.RelaunchAfter = b
	case "console_lines":
		s.General.ConsoleLines = n
	case "bundle_id":
		s.App.BundleID = value
	case "app_path":
		s.App.AppPath = value
	case "container_path":
		s.App.ContainerPath = value
	case "user_agent":
		s.Network.UserAgent = value
	case "proxy_url":
		s.Network.ProxyURL = value
	case "log_reset_wait":
		s.Timings.LogResetWait = d
	case "signal_wait":
		s.Timings.SignalWait = d
	case "stuck_recovery":
		s.Timings.StuckRecovery = d
	case "transfer_stall_timeout":
		s.Timings.TransferStall = d
	case "max_transfer_retries":
		s.Timings.MaxTransferRetries = n
	}
	return nil
}

func lookupMeta(key string) (SettingMeta, bool) {
	for _, metas := range GetSettingsMetadata() {
		for _, m := range metas {
			if m.Key == key {
				return m, true
			}
		}
	}
	return SettingMeta{}, false
}
