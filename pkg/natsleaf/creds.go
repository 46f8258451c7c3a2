/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package natsleaf mints the per-site message-bus credentials installed on
// leaf servers. It uses NATS JWT and NKeys for cryptographic identity;
// user claims are signed by the tenant's account key.
package natsleaf

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"
)

var (
	// ErrAccountSeedInvalid is returned when the configured account seed cannot be parsed.
	ErrAccountSeedInvalid = errors.New("natsleaf: account seed invalid")
	// ErrSiteSlugRequired is returned when credentials are requested without a site.
	ErrSiteSlugRequired = errors.New("natsleaf: site slug required")
)

// DefaultCertTTL bounds credential validity when the config does not set one.
const DefaultCertTTL = 90 * 24 * time.Hour

// Role selects the permission profile baked into minted credentials.
type Role string

const (
	// RoleLeaf is the identity the leaf node dials upstream with.
	RoleLeaf Role = "leaf"
	// RoleServer is the identity local edge components authenticate against.
	RoleServer Role = "server"
)

// Credentials is one minted NATS user identity.
type Credentials struct {
	PublicKey string
	UserJWT   string
	CredsFile string
	ExpiresAt time.Time
}

// Minter signs leaf and server user claims with a tenant account key.
type Minter struct {
	accountKP        nkeys.KeyPair
	accountPublicKey string
	now              func() time.Time
}

// NewMinter parses the tenant account seed and prepares a signer.
func NewMinter(accountSeed string) (*Minter, error) {
	kp, err := nkeys.FromSeed([]byte(accountSeed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccountSeedInvalid, err)
	}

	publicKey, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("natsleaf: account public key: %w", err)
	}

	if !nkeys.IsValidPublicAccountKey(publicKey) {
		return nil, fmt.Errorf("%w: not an account key", ErrAccountSeedInvalid)
	}

	return &Minter{
		accountKP:        kp,
		accountPublicKey: publicKey,
		now:              time.Now,
	}, nil
}

// SetClock overrides the minter's clock. Intended for tests.
func (m *Minter) SetClock(now func() time.Time) {
	m.now = now
}

// Mint creates a fresh user key pair for the given site and role and signs
// its claims with the account key. The returned creds-file content is the
// only place the user seed appears.
func (m *Minter) Mint(tenantID, siteSlug string, role Role, ttl time.Duration) (*Credentials, error) {
	if siteSlug == "" {
		return nil, ErrSiteSlugRequired
	}

	if ttl <= 0 {
		ttl = DefaultCertTTL
	}

	userKP, err := nkeys.CreateUser()
	if err != nil {
		return nil, fmt.Errorf("natsleaf: create user key: %w", err)
	}

	userPublicKey, err := userKP.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("natsleaf: user public key: %w", err)
	}

	userSeed, err := userKP.Seed()
	if err != nil {
		return nil, fmt.Errorf("natsleaf: user seed: %w", err)
	}

	claims := jwt.NewUserClaims(userPublicKey)
	claims.Name = fmt.Sprintf("%s-%s-%s", tenantID, siteSlug, role)
	claims.IssuerAccount = m.accountPublicKey

	applyRolePermissions(claims, tenantID, siteSlug, role)

	expiresAt := m.now().UTC().Add(ttl)
	claims.Expires = expiresAt.Unix()

	userJWT, err := claims.Encode(m.accountKP)
	if err != nil {
		return nil, fmt.Errorf("natsleaf: sign user claims: %w", err)
	}

	return &Credentials{
		PublicKey: userPublicKey,
		UserJWT:   userJWT,
		CredsFile: formatCredsFile(userJWT, userSeed),
		ExpiresAt: expiresAt,
	}, nil
}

// applyRolePermissions scopes each identity to its tenant and site subjects.
func applyRolePermissions(claims *jwt.UserClaims, tenantID, siteSlug string, role Role) {
	sitePrefix := fmt.Sprintf("%s.%s", tenantID, siteSlug)

	switch role {
	case RoleLeaf:
		// The leaf relays everything under its site subtree upstream.
		claims.Permissions.Pub.Allow.Add(sitePrefix + ".>")
		claims.Permissions.Sub.Allow.Add(sitePrefix + ".>")
		claims.Permissions.Sub.Allow.Add("_INBOX.>")
		claims.Permissions.Resp = &jwt.ResponsePermission{
			MaxMsgs: 1,
			Expires: time.Minute,
		}
	case RoleServer:
		claims.Permissions.Pub.Allow.Add(sitePrefix + ".>")
		claims.Permissions.Sub.Allow.Add(sitePrefix + ".>")
		claims.Permissions.Sub.Allow.Add("_INBOX.>")
		claims.Permissions.Resp = &jwt.ResponsePermission{
			MaxMsgs: 100,
			Expires: 5 * time.Minute,
		}
	}
}

// formatCredsFile creates the content of a NATS .creds file.
func formatCredsFile(userJWT string, seed []byte) string {
	return fmt.Sprintf(`-----BEGIN NATS USER JWT-----
%s
------END NATS USER JWT------

************************* IMPORTANT *************************
NKEY Seed printed below can be used to sign and prove identity.
NKEYs are sensitive and should be treated as secrets.

-----BEGIN USER NKEY SEED-----
%s
------END USER NKEY SEED------

*************************************************************
`, userJWT, string(seed))
}
