package config

// SettingsConfig holds general application settings.
type SettingsConfig struct {
	// Seed makes value sampling reproducible when set.
	Seed            *uint64
	InternalMetrics InternalMetricsConfig
}

// InternalMetricsConfig controls seqbox's self-monitoring metrics.
type InternalMetricsConfig struct {
	Enabled bool
}

// resolveSettings converts raw settings config to resolved settings config
func resolveSettings(raw *RawSettingsConfig) SettingsConfig {
	result := SettingsConfig{
		InternalMetrics: InternalMetricsConfig{
			Enabled: raw.InternalMetrics.Enabled,
		},
	}
	if raw.Seed != nil {
		seed := *raw.Seed
		result.Seed = &seed
	}
	return result
}
