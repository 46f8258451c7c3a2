package models

import (
	"errors"
	"time"
)

// SiteStatus represents the lifecycle state of an edge site.
type SiteStatus string

const (
	SiteStatusPending SiteStatus = "pending"
	SiteStatusActive  SiteStatus = "active"
	SiteStatusOffline SiteStatus = "offline"
)

// LeafServerStatus represents the provisioning state of a site's NATS leaf server.
type LeafServerStatus string

const (
	LeafServerStatusPending      LeafServerStatus = "pending"
	LeafServerStatusProvisioned  LeafServerStatus = "provisioned"
	LeafServerStatusConnected    LeafServerStatus = "connected"
	LeafServerStatusDisconnected LeafServerStatus = "disconnected"
)

var (
	ErrSiteInvalidRequest = errors.New("edge site: invalid request")
	ErrSiteSlugConflict   = errors.New("edge site: slug already in use")
	ErrLeafKeyUnavailable = errors.New("edge site: leaf server has no key material")
)

// EdgeSite is a physical or logical location that hosts edge components
// behind a per-site message-bus leaf server.
type EdgeSite struct {
	SiteID      string     `json:"site_id"`
	TenantID    string     `json:"tenant_id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	NatsLeafURL string     `json:"nats_leaf_url,omitempty"`
	Status      SiteStatus `json:"status"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NatsLeafServer tracks the provisioning state and encrypted key material
// for a site's leaf node. Key ciphertexts are opaque outside bundle
// generation; they are never returned decrypted to callers.
type NatsLeafServer struct {
	SiteID              string           `json:"site_id"`
	TenantID            string           `json:"tenant_id"`
	Status              LeafServerStatus `json:"status"`
	UpstreamURL         string           `json:"upstream_url,omitempty"`
	LeafKeyCiphertext   string           `json:"-"`
	ServerKeyCiphertext string           `json:"-"`
	CertExpiresAt       *time.Time       `json:"cert_expires_at,omitempty"`
	ProvisionedAt       *time.Time       `json:"provisioned_at,omitempty"`
	ConnectedAt         *time.Time       `json:"connected_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// SiteCreateRequest drives edge site creation. Slug is derived from Name
// when omitted.
type SiteCreateRequest struct {
	Name        string
	Slug        string
	NatsLeafURL string
	CreatedBy   string
}

// CertExpirySeverity classifies how urgently a leaf certificate needs rotation.
type CertExpirySeverity string

const (
	CertExpiryOK           CertExpirySeverity = "ok"
	CertExpiryExpiring     CertExpirySeverity = "expiring"
	CertExpiryExpiringSoon CertExpirySeverity = "expiring_soon"
	CertExpiryExpired      CertExpirySeverity = "expired"
)
