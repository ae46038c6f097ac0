package config

// ApplyDefaults fills unset fields with their defaults. Explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyOutputDefaults(&cfg.Output)
	applyReportDefaults(&cfg.Report)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = normalizeLogLevel(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
}

func applyOutputDefaults(cfg *OutputConfig) {
	if cfg.Directory == "" {
		cfg.Directory = "."
	}
}

func applyReportDefaults(cfg *ReportConfig) {
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 500
	}
}

// DefaultConfig is a Config with every default applied and the option
// scopes resolved. Useful for sample generation and tests.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.resolveScopes()
	return cfg
}
