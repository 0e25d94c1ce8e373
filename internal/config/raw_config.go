package config

// RawConfig represents unparsed YAML structure
type RawConfig struct {
	Metrics  []RawMetricConfig `yaml:"config"`
	Export   RawExportConfig   `yaml:"export"`
	Settings RawSettingsConfig `yaml:"settings"`
}

// RawMetricConfig is a metric as written in the config file
type RawMetricConfig struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Type        string              `yaml:"type"`
	Labels      []string            `yaml:"labels,omitempty"`
	Buckets     []float64           `yaml:"buckets,omitempty"`
	Sequence    []RawSequenceConfig `yaml:"sequence"`
}

// RawSequenceConfig is one phase as written in the config file
type RawSequenceConfig struct {
	EvalTime  RawDuration       `yaml:"eval_time"`
	Interval  RawDuration       `yaml:"interval"`
	Value     *RawScalar        `yaml:"value,omitempty"`
	Values    *RawScalar        `yaml:"values,omitempty"`
	Labels    map[string]string `yaml:"labels,omitempty"`
	Operation string            `yaml:"operation,omitempty"`
}
