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

package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitroom/errors"
)

// canonical vendor shape recognized by Normalize:
//
//	{
//	  "id": ...,
//	  "current_status": "OK" | "Alert" | "No Data" | "Error" | ...,
//	  "first_seen": <epoch seconds|ms> | "created_at": <RFC3339>,
//	  "metadata": {"event": {"id": ..., "attributes": {
//	      "timestamp": <epoch seconds|ms|RFC3339>,
//	      "message": "<title>\n...",
//	      "tags": ["key:value", "bare-tag", ...],
//	      "event_object": "...", "aggregation_key": "...", "group_key": "..."
//	  }}}
//	}
const sourceVendor = "datadog"

// Normalizer turns opaque vendor records into Alerts.
type Normalizer struct {
	logger *zap.Logger
}

// New returns a Normalizer that logs skipped records at Warn via logger.
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeAll normalizes every record, logging and skipping malformed ones
// rather than aborting the run.
func (n *Normalizer) NormalizeAll(records []RawRecord) []*Alert {
	out := make([]*Alert, 0, len(records))
	for i, rec := range records {
		a, err := n.Normalize(rec)
		if err != nil {
			if n.logger != nil {
				n.logger.Warn("skipping malformed alert record",
					zap.Int("index", i), zap.Error(err))
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

// Normalize maps one raw record to an Alert, or returns a MalformedRecord
// error when the record yields neither a timestamp source nor any
// entity-identifying field.
func (n *Normalizer) Normalize(raw RawRecord) (*Alert, error) {
	attrs := nestedMap(raw, "metadata", "event", "attributes")
	event := nestedMap(raw, "metadata", "event")

	tsSource, hasTS := attrs["timestamp"]
	if !hasTS {
		if v, ok := raw["first_seen"]; ok {
			tsSource, hasTS = v, true
		} else if v, ok := raw["created_at"]; ok {
			tsSource, hasTS = v, true
		}
	}

	tags := extractTags(attrs["tags"])

	service := stringOr(tags["service"], "undefined")
	cluster := firstNonEmpty(stringOr(tags["kube_cluster_name"], ""), stringOr(tags["cluster"], ""))
	ns := firstNonEmpty(stringOr(tags["kube_namespace"], ""), stringOr(tags["namespace"], ""))
	pod := firstNonEmpty(stringOr(tags["pod_name"], ""), stringOr(tags["pod"], ""))
	host := stringOr(tags["host"], "")

	entityKey := resolveEntityKey(service, ns, pod, host, cluster)

	if !hasTS && entityKey == EntityNA {
		return nil, errors.MalformedRecord("normalize", fmt.Errorf("no timestamp source and no entity-identifying field"))
	}

	ts := parseTimestamp(tsSource)

	status := resolveStatus(stringOr(raw["current_status"], ""))

	title := ""
	if msg, ok := attrs["message"].(string); ok && msg != "" {
		title = strings.SplitN(msg, "\n", 2)[0]
	}

	vendorEventID := stringOr(event["id"], "")
	if vendorEventID == "" {
		vendorEventID = stringOr(raw["id"], "")
	}

	resourceID := firstNonEmpty(
		stringOr(attrs["event_object"], ""),
		stringOr(event["id"], ""),
		stringOr(attrs["aggregation_key"], ""),
	)
	if resourceID == "" {
		resourceID = fmt.Sprintf("%s|%s", stringOr(raw["id"], ""), stringOr(attrs["group_key"], ""))
	}

	a := &Alert{
		TS:            ts,
		Source:        sourceVendor,
		VendorEventID: vendorEventID,
		ResourceID:    resourceID,
		Status:        status,
		Severity:      SeverityHigh,
		Title:         title,
		Service:       service,
		Cluster:       cluster,
		NS:            ns,
		Pod:           pod,
		Host:          host,
		DeployKey:     firstNonEmpty(stringOr(tags["git_sha"], ""), stringOr(tags["release"], ""), stringOr(tags["commit"], "")),
		Tags:          tags,
		EntityKey:     entityKey,
	}
	a.NetKey = resolveNetKey(tags)
	a.Fingerprint = generateFingerprint(a)

	if a.ResourceID == "" || a.ResourceID == "|" {
		a.ResourceID = hashHex(fmt.Sprintf("%s|%s|%s", a.Source, a.VendorEventID, a.EntityKey))
	}

	return a, nil
}

func resolveEntityKey(service, ns, pod, host, cluster string) string {
	switch {
	case service != "" && service != "undefined":
		return "svc:" + service
	case ns != "" && pod != "":
		return "pod:" + pod
	case host != "":
		return "host:" + host
	case cluster != "":
		return "cluster:" + cluster
	default:
		return EntityNA
	}
}

func resolveStatus(currentStatus string) string {
	switch strings.ToLower(currentStatus) {
	case "ok", "resolved":
		return StatusResolved
	case "no data", "error":
		return StatusFiring
	default:
		return StatusFiring
	}
}

func resolveNetKey(tags map[string]interface{}) string {
	srcIP, dstIP := stringOr(tags["src_ip"], ""), stringOr(tags["dst_ip"], "")
	if srcIP != "" && dstIP != "" {
		return srcIP + "→" + dstIP
	}
	srcHost, dstHost := stringOr(tags["src_host"], ""), stringOr(tags["dst_host"], "")
	if srcHost != "" && dstHost != "" {
		return srcHost + "→" + dstHost
	}
	return ""
}

// generateFingerprint hashes (title, severity, cluster, ns, service) —
// volatile per-instance fields (pod, resource id, vendor event id) are
// deliberately excluded so repeated failures on the same service aggregate.
func generateFingerprint(a *Alert) string {
	s := fmt.Sprintf("title=%s|sev=%s|cluster=%s|ns=%s|service=%s", a.Title, a.Severity, a.Cluster, a.NS, a.Service)
	return hashHex(s)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// parseTimestamp accepts epoch seconds/milliseconds (numbers, or numeric
// strings), RFC3339/ISO-8601 strings, falling back to the current time.
func parseTimestamp(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return normalizeEpoch(float64(t))
	case int:
		return normalizeEpoch(float64(t))
	case float64:
		return normalizeEpoch(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return normalizeEpoch(f)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UnixMilli()
			}
		}
	}
	return time.Now().UTC().UnixMilli()
}

func normalizeEpoch(v float64) int64 {
	if v < 1e12 {
		return int64(v * 1000)
	}
	return int64(v)
}

// extractTags flattens a Datadog-style tag list ("key:value" or bare tags)
// into a map, coercing "true"/"false" to bool and all-digit strings to int.
func extractTags(raw interface{}) map[string]interface{} {
	tags := map[string]interface{}{}
	list, ok := raw.([]interface{})
	if !ok {
		return tags
	}
	for _, item := range list {
		tag, ok := item.(string)
		if !ok {
			continue
		}
		if idx := strings.Index(tag, ":"); idx >= 0 {
			key, value := tag[:idx], tag[idx+1:]
			switch strings.ToLower(value) {
			case "true":
				tags[key] = true
			case "false":
				tags[key] = false
			default:
				if isAllDigits(value) {
					n, _ := strconv.Atoi(value)
					tags[key] = n
				} else {
					tags[key] = value
				}
			}
		} else {
			tags[tag] = true
		}
	}
	return tags
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nestedMap(m map[string]interface{}, keys ...string) map[string]interface{} {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]interface{})
		if !ok {
			return map[string]interface{}{}
		}
		cur = next
	}
	return cur
}

func stringOr(v interface{}, def string) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return def
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
