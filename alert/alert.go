// Copyright (C) 2024 sitroom contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package alert holds the normalized Alert shape and the Normalizer that
// turns opaque vendor records into it.
package alert

// Severity levels, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Status values.
const (
	StatusFiring   = "firing"
	StatusResolved = "resolved"
)

// EntityNA is the entity key used when no infrastructure key can be derived.
const EntityNA = "entity:na"

// RawRecord is an opaque vendor record handed to the Normalizer by the
// ingestion collaborator. Its shape is vendor-defined; the Normalizer only
// recognizes the canonical fields documented above sourceVendor in
// normalizer.go.
type RawRecord map[string]interface{}

// Alert is the uniform, immutable-once-built record every later stage
// consumes.
type Alert struct {
	TS            int64                  `json:"ts"`
	Source        string                 `json:"source"`
	VendorEventID string                 `json:"vendor_event_id"`
	ResourceID    string                 `json:"resource_id"`
	Fingerprint   string                 `json:"fingerprint"`
	Status        string                 `json:"status"`
	Severity      string                 `json:"severity"`
	Title         string                 `json:"title"`
	Service       string                 `json:"service,omitempty"`
	Cluster       string                 `json:"cluster,omitempty"`
	NS            string                 `json:"ns,omitempty"`
	Pod           string                 `json:"pod,omitempty"`
	Host          string                 `json:"host,omitempty"`
	DeployKey     string                 `json:"deploy_key,omitempty"`
	NetKey        string                 `json:"net_key,omitempty"`
	Tags          map[string]interface{} `json:"tags"`
	EntityKey     string                 `json:"entity_key"`
}
