// Package config loads the two configuration layers of simplemail: the
// per-user rc file holding identity and credentials, and the optional
// delivery settings selecting and tuning the transport provider.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DeliveryFileName is the optional YAML delivery settings file in the home
// directory.
const DeliveryFileName = ".simplemail.yaml"

// Provider names accepted in Delivery.Provider.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderStdout = "stdout"
)

// Delivery holds transport selection and provider-specific settings.
type Delivery struct {
	Provider string        `yaml:"provider"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	TLS      TLSConfig     `yaml:"tls"`
	SES      SESConfig     `yaml:"ses"`
	Graph    GraphConfig   `yaml:"graph"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPConfig tunes the SMTP provider.
type SMTPConfig struct {
	// Auth is the SMTP AUTH mechanism: plain, login or cram-md5.
	Auth string `yaml:"auth"`
}

// TLSConfig configures server certificate verification for SMTP.
type TLSConfig struct {
	CAFile     string `yaml:"ca_file"`
	SkipVerify bool   `yaml:"skip_verify"`
}

// SESConfig holds AWS SES v2 settings. The sender is the rc MAIL address.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API settings. The sender mailbox is
// the rc MAIL address.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DeliveryPath returns the delivery settings path: SIMPLEMAIL_CONFIG if
// set, otherwise $HOME/.simplemail.yaml. It returns "" when neither is
// available.
func DeliveryPath(getenv func(string) string) string {
	if p := getenv("SIMPLEMAIL_CONFIG"); p != "" {
		return p
	}
	if home := getenv("HOME"); home != "" {
		return filepath.Join(home, DeliveryFileName)
	}
	return ""
}

// LoadDelivery loads delivery settings from the YAML file at path, if it
// exists, fills unset fields with defaults and then applies environment
// overrides. A missing file is not an error unless it was named through
// SIMPLEMAIL_CONFIG.
func LoadDelivery(path string, getenv func(string) string) (*Delivery, error) {
	cfg := &Delivery{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse delivery config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist) && getenv("SIMPLEMAIL_CONFIG") == "":
		default:
			return nil, fmt.Errorf("failed to read delivery config: %w", err)
		}
	}

	if err := mergo.Merge(cfg, defaultDelivery()); err != nil {
		return nil, fmt.Errorf("failed to apply delivery defaults: %w", err)
	}

	// Environment variables always override file values
	cfg.applyEnvVars(getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SESConfigured returns true if the SES region is set.
func (c *Delivery) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all three Graph API credentials are set.
func (c *Delivery) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

func defaultDelivery() Delivery {
	return Delivery{
		Provider: ProviderSMTP,
		SMTP:     SMTPConfig{Auth: "plain"},
		Logging:  LoggingConfig{Level: "warn"},
	}
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Delivery) applyEnvVars(getenv func(string) string) {
	if v := getenv("SIMPLEMAIL_PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := getenv("SIMPLEMAIL_SMTP_AUTH"); v != "" {
		c.SMTP.Auth = strings.ToLower(v)
	}

	if v := getenv("SIMPLEMAIL_TLS_CA_FILE"); v != "" {
		c.TLS.CAFile = v
	}
	if v := getenv("SIMPLEMAIL_TLS_SKIP_VERIFY"); v != "" {
		if skip, err := strconv.ParseBool(v); err == nil {
			c.TLS.SkipVerify = skip
		}
	}

	if v := getenv("SIMPLEMAIL_SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := getenv("SIMPLEMAIL_SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := getenv("SIMPLEMAIL_SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := getenv("SIMPLEMAIL_GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := getenv("SIMPLEMAIL_GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := getenv("SIMPLEMAIL_GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}

	if v := getenv("SIMPLEMAIL_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func (c *Delivery) validate() error {
	switch c.Provider {
	case ProviderSMTP, ProviderStdout:
	case ProviderSES:
		if !c.SESConfigured() {
			return fmt.Errorf("ses provider selected but SIMPLEMAIL_SES_REGION is not set")
		}
	case ProviderGraph:
		if !c.GraphConfigured() {
			return fmt.Errorf("graph provider selected but SIMPLEMAIL_GRAPH_TENANT_ID, SIMPLEMAIL_GRAPH_CLIENT_ID and SIMPLEMAIL_GRAPH_CLIENT_SECRET are required")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.SMTP.Auth {
	case "plain", "login", "cram-md5":
	default:
		return fmt.Errorf("unknown smtp auth mechanism %q", c.SMTP.Auth)
	}
	return nil
}
