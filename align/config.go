package align

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration for the driver: registration defaults plus
// optional telemetry settings.
type Config struct {
	Method    string     `yaml:"method,omitempty"`
	CPD       CPDConfig  `yaml:"cpd,omitempty"`
	Telemetry MQTTConfig `yaml:"telemetry,omitempty"`
}

// CPDConfig carries the CPD defaults from the config file.
type CPDConfig struct {
	MaxIterations    int     `yaml:"max_iterations,omitempty"`
	Tolerance        float64 `yaml:"tolerance,omitempty"`
	OutlierWeight    float64 `yaml:"w,omitempty"`
	SigmaSquaredInit float64 `yaml:"sigma_squared_init,omitempty"`
}

// MQTTConfig holds MQTT connection settings for telemetry publishing.
// Telemetry is disabled when Broker is empty and MQTT_BROKER is unset.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
}

// LoadConfig loads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field ranges and fills defaults.
func (c *Config) Validate() error {
	if c.Method == "" {
		c.Method = "com"
	}
	if _, err := ParseMethod(c.Method); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	defaults := DefaultCPDParams()
	if c.CPD.MaxIterations == 0 {
		c.CPD.MaxIterations = defaults.MaxIterations
	}
	if c.CPD.MaxIterations < 0 {
		return fmt.Errorf("config: cpd.max_iterations must be positive, got %d", c.CPD.MaxIterations)
	}
	if c.CPD.Tolerance < 0 {
		return fmt.Errorf("config: cpd.tolerance must be non-negative, got %v", c.CPD.Tolerance)
	}
	if c.CPD.OutlierWeight < 0 || c.CPD.OutlierWeight >= 1 {
		return fmt.Errorf("config: cpd.w = %v: %w", c.CPD.OutlierWeight, ErrInvalidOutlierWeight)
	}
	if c.CPD.SigmaSquaredInit < 0 {
		return fmt.Errorf("config: cpd.sigma_squared_init must be non-negative, got %v", c.CPD.SigmaSquaredInit)
	}
	return nil
}

// CPDParams converts the config's CPD block into aligner parameters.
func (c *Config) CPDParams() CPDParams {
	p := DefaultCPDParams()
	if c.CPD.MaxIterations > 0 {
		p.MaxIterations = c.CPD.MaxIterations
	}
	if c.CPD.Tolerance > 0 {
		p.Tolerance = c.CPD.Tolerance
	}
	p.W = c.CPD.OutlierWeight
	p.SigmaSquaredInit = c.CPD.SigmaSquaredInit
	return p
}
