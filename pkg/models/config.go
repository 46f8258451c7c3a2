package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can use "30s"/"24h" strings.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch value := raw.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// TLSConfig carries mutual-TLS material locations for outbound connections.
type TLSConfig struct {
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty"`
}

// PostgresDatabase describes the tenant-scoped storage cluster.
type PostgresDatabase struct {
	Host               string            `json:"host"`
	Port               int               `json:"port,omitempty"`
	Database           string            `json:"database"`
	Username           string            `json:"username,omitempty"`
	Password           string            `json:"password,omitempty"`
	SSLMode            string            `json:"ssl_mode,omitempty"`
	ApplicationName    string            `json:"application_name,omitempty"`
	MaxConnections     int32             `json:"max_connections,omitempty"`
	MinConnections     int32             `json:"min_connections,omitempty"`
	MaxConnLifetime    Duration          `json:"max_conn_lifetime,omitempty"`
	HealthCheckPeriod  Duration          `json:"health_check_period,omitempty"`
	StatementTimeout   Duration          `json:"statement_timeout,omitempty"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
	TLS                *TLSConfig        `json:"tls,omitempty"`
}

// OnboardingConfig controls package issuance.
type OnboardingConfig struct {
	Enabled          bool     `json:"enabled"`
	EncryptionKey    string   `json:"encryption_key"`
	SecurityMode     string   `json:"security_mode,omitempty"`
	DownloadTokenTTL Duration `json:"download_token_ttl,omitempty"`
}

// LeafCredsConfig controls leaf-server credential minting.
type LeafCredsConfig struct {
	AccountSeed string   `json:"account_seed"`
	UpstreamURL string   `json:"upstream_url"`
	CertTTL     Duration `json:"cert_ttl,omitempty"`
}

// CoreServiceConfig is the top-level configuration for the edgefleet service.
type CoreServiceConfig struct {
	ListenAddr string            `json:"listen_addr"`
	Database   *PostgresDatabase `json:"database"`
	Onboarding *OnboardingConfig `json:"onboarding"`
	LeafCreds  *LeafCredsConfig  `json:"leaf_creds"`
	LogLevel   string            `json:"log_level,omitempty"`
}

// ErrorResponse is the JSON error body returned by the HTTP surface.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}
