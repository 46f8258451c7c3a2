package models

import (
	"errors"
	"time"
)

// PackageStatus represents the lifecycle state of an onboarding package.
type PackageStatus string

const (
	PackageStatusIssued    PackageStatus = "issued"
	PackageStatusDelivered PackageStatus = "delivered"
	PackageStatusActivated PackageStatus = "activated"
	PackageStatusRevoked   PackageStatus = "revoked"
	PackageStatusExpired   PackageStatus = "expired"
	PackageStatusDeleted   PackageStatus = "deleted"
)

// Terminal reports whether no further transition is permitted from the status.
func (s PackageStatus) Terminal() bool {
	switch s {
	case PackageStatusRevoked, PackageStatusExpired, PackageStatusDeleted:
		return true
	case PackageStatusIssued, PackageStatusDelivered, PackageStatusActivated:
		return false
	default:
		return false
	}
}

// ComponentType identifies the edge resource represented by a package.
type ComponentType string

const (
	ComponentTypePoller  ComponentType = "poller"
	ComponentTypeAgent   ComponentType = "agent"
	ComponentTypeChecker ComponentType = "checker"
	ComponentTypeNone    ComponentType = ""
)

// ParentTypeFor derives the required parent component type. Callers never
// supply parent_type directly; it is a pure function of the component type.
func ParentTypeFor(ct ComponentType) ComponentType {
	switch ct {
	case ComponentTypeAgent:
		return ComponentTypePoller
	case ComponentTypeChecker:
		return ComponentTypeAgent
	case ComponentTypePoller, ComponentTypeNone:
		return ComponentTypeNone
	default:
		return ComponentTypeNone
	}
}

// PackageEventType enumerates the audit trail entries recorded for a package.
type PackageEventType string

const (
	PackageEventCreated   PackageEventType = "created"
	PackageEventDelivered PackageEventType = "delivered"
	PackageEventActivated PackageEventType = "activated"
	PackageEventRevoked   PackageEventType = "revoked"
	PackageEventDeleted   PackageEventType = "deleted"
)

var (
	ErrOnboardingInvalidRequest = errors.New("onboarding: invalid request")
	ErrPackageRevoked           = errors.New("onboarding: package already revoked")
	ErrPackageExpired           = errors.New("onboarding: package expired")
	ErrPackageDeleted           = errors.New("onboarding: package already deleted")
	ErrDownloadTokenRequired    = errors.New("onboarding: download token required")
	ErrDownloadTokenInvalid     = errors.New("onboarding: download token invalid")
	ErrDownloadTokenExpired     = errors.New("onboarding: download token expired")
	ErrDecryptFailed            = errors.New("onboarding: decrypt failed")
)

// Package models the material tracked for one edge component bootstrap.
// The download token itself is never stored; only its digest survives
// creation.
type Package struct {
	PackageID              string        `json:"package_id"`
	TenantID               string        `json:"tenant_id"`
	Label                  string        `json:"label"`
	ComponentType          ComponentType `json:"component_type"`
	ParentType             ComponentType `json:"parent_type,omitempty"`
	ParentID               string        `json:"parent_id,omitempty"`
	PollerID               string        `json:"poller_id,omitempty"`
	SecurityMode           string        `json:"security_mode"`
	Status                 PackageStatus `json:"status"`
	CheckerKind            string        `json:"checker_kind,omitempty"`
	CheckerConfigJSON      string        `json:"checker_config_json,omitempty"`
	PayloadCiphertext      string        `json:"-"`
	DownloadTokenHash      string        `json:"-"`
	DownloadTokenExpiresAt time.Time     `json:"download_token_expires_at"`
	CreatedBy              string        `json:"created_by"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
	DeliveredAt            *time.Time    `json:"delivered_at,omitempty"`
	ActivatedAt            *time.Time    `json:"activated_at,omitempty"`
	RevokedAt              *time.Time    `json:"revoked_at,omitempty"`
	DeletedAt              *time.Time    `json:"deleted_at,omitempty"`
	DeletedBy              string        `json:"deleted_by,omitempty"`
	DeletedReason          string        `json:"deleted_reason,omitempty"`
	Notes                  string        `json:"notes,omitempty"`
}

// PackageEvent captures one append-only audit record for a package.
type PackageEvent struct {
	PackageID   string           `json:"package_id"`
	TenantID    string           `json:"tenant_id"`
	EventTime   time.Time        `json:"event_time"`
	EventType   PackageEventType `json:"event_type"`
	Actor       string           `json:"actor"`
	SourceIP    string           `json:"source_ip,omitempty"`
	DetailsJSON string           `json:"details_json,omitempty"`
}

// PackageListFilter narrows package listings. Tenant scope is carried
// separately as an explicit storage parameter, never through the filter.
// Statuses match the presented lifecycle: an issued row whose download
// token elapsed before AsOf counts as expired, not issued.
type PackageListFilter struct {
	Statuses []PackageStatus
	Types    []ComponentType
	Limit    int
	AsOf     time.Time
}

// PackageCreateRequest drives package provisioning.
type PackageCreateRequest struct {
	Label             string
	ComponentType     ComponentType
	ParentID          string
	PollerID          string
	CheckerKind       string
	CheckerConfigJSON string
	Notes             string
	CreatedBy         string
	DownloadTokenTTL  time.Duration
}

// PackageCreateResult bundles the stored package with the one-time
// cleartext download token.
type PackageCreateResult struct {
	Package       *Package
	DownloadToken string
}

// PackageDeliverRequest captures a download-token redemption.
type PackageDeliverRequest struct {
	PackageID     string
	DownloadToken string
	Actor         string
	SourceIP      string
}

// PackageDeliverResult carries decrypted installer material.
type PackageDeliverResult struct {
	Package *Package
	Payload []byte
}

// PackageRevokeRequest describes a package revocation.
type PackageRevokeRequest struct {
	PackageID string
	Actor     string
	Reason    string
	SourceIP  string
}
