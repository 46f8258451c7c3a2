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

package db

import "errors"

var (

	// Operation errors.

	ErrFailedToQuery = errors.New("failed to query")
	ErrFailedToScan  = errors.New("failed to scan")
	ErrFailedToExec  = errors.New("failed to execute")
	ErrFailedToBegin = errors.New("failed to begin transaction")

	// Scoping. A missing tenant is a caller bug, never silently widened.

	ErrTenantRequired = errors.New("tenant id is required")

	// Onboarding packages. Tenant-mismatched reads surface as not-found.

	ErrPackageNotFound = errors.New("onboarding package not found")
	ErrPackageNil      = errors.New("onboarding package is nil")
	ErrEventNil        = errors.New("onboarding event is nil")

	// Edge sites.

	ErrSiteNotFound       = errors.New("edge site not found")
	ErrSiteNil            = errors.New("edge site is nil")
	ErrSiteSlugExists     = errors.New("edge site slug already exists")
	ErrLeafServerNotFound = errors.New("leaf server not found")
	ErrLeafServerNil      = errors.New("leaf server is nil")
)
