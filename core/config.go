package core

import (
	"fmt"
	"io"
	"os"

	"github.com/abema/netwatch/internal/url"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ApplicationID string `yaml:"applicationId"`

	// Intake endpoints of the agent. Requests to their origins are the
	// agent's own traffic and are not collected as resources.
	LogsEndpoint               string `yaml:"logsEndpoint"`
	RUMEndpoint                string `yaml:"rumEndpoint"`
	TraceEndpoint              string `yaml:"traceEndpoint"`
	InternalMonitoringEndpoint string `yaml:"internalMonitoringEndpoint"`

	Datacenter string `yaml:"datacenter"`
	Env        string `yaml:"env"`
	Version    string `yaml:"version"`

	// TrackResources enables collection of timing records that were not
	// produced by an intercepted request.
	TrackResources bool `yaml:"trackResources"`

	// TraceSource resolves the trace id when the response carries none.
	TraceSource TraceSource `yaml:"-"`
	// NormalizeURL overrides the default URL normalization, which resolves
	// against the window location and drops the fragment.
	NormalizeURL func(u string) string `yaml:"-"`
}

func NewConfig() *Config {
	return &Config{
		Datacenter:     "us",
		Env:            "production",
		TrackResources: true,
		TraceSource:    ContextTraceSource{},
	}
}

// LoadConfig overlays the YAML document read from r on the defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	config := NewConfig()
	if err := yaml.NewDecoder(r).Decode(config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

func LoadConfigFile(name string) (*Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Tags returns the build environment attached to every emitted event.
// Empty fields are omitted.
func (c *Config) Tags() Values {
	tags := Values{}
	for key, value := range map[string]string{
		"applicationId": c.ApplicationID,
		"datacenter":    c.Datacenter,
		"env":           c.Env,
		"version":       c.Version,
	} {
		if value != "" {
			tags[key] = value
		}
	}
	return tags
}

func (c *Config) endpoints() []string {
	return []string{
		c.LogsEndpoint,
		c.RUMEndpoint,
		c.TraceEndpoint,
		c.InternalMonitoringEndpoint,
	}
}

// IsIntakeRequest reports whether u targets the origin of any endpoint.
func (c *Config) IsIntakeRequest(u string) bool {
	for _, endpoint := range c.endpoints() {
		if endpoint != "" && url.SameOrigin(endpoint, u) {
			return true
		}
	}
	return false
}
