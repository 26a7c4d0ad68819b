package config

// Config is implemented by every configuration section.
type Config interface {
	GetName() string
	Validate() error
}

// ConfigChangeListener is notified after a section has been reloaded and
// validated. A listener error is logged; the new value stays in effect.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}
