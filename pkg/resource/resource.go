// Package resource defines the normalized cache resource model.
package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"maps"
	"slices"
	"strings"
	"time"
)

// Type is the kind of ElastiCache resource.
type Type string

const (
	// TypeCluster is a single cache cluster.
	TypeCluster Type = "cluster"
	// TypeReplicationGroup is a replication group (Redis/Valkey).
	TypeReplicationGroup Type = "replication-group"
)

// Absent marks an optional attribute the API did not return.
const Absent = "n/a"

// Attribute keys. Every resource carries all of them.
const (
	AttrEngine             = "engine"
	AttrEngineVersion      = "engine_version"
	AttrNodeTypes          = "node_types"
	AttrNumNodes           = "num_nodes"
	AttrAtRestEncryption   = "at_rest_encryption"
	AttrTransitEncryption  = "transit_encryption"
	AttrAuthTokenEnabled   = "auth_token_enabled"
	AttrEndpoint           = "endpoint"
	AttrStatus             = "status"
	AttrCreationTime       = "creation_time"
	AttrReplicationGroupID = "replication_group_id"
	AttrMemberClusters     = "member_clusters"
	AttrClusterMode        = "cluster_mode"
	AttrMultiAZ            = "multi_az"
	AttrAutomaticFailover  = "automatic_failover"
	AttrSnapshotRetention  = "snapshot_retention_days"
)

// AttrKeys lists every attribute key in a stable order.
var AttrKeys = []string{
	AttrEngine,
	AttrEngineVersion,
	AttrNodeTypes,
	AttrNumNodes,
	AttrAtRestEncryption,
	AttrTransitEncryption,
	AttrAuthTokenEnabled,
	AttrEndpoint,
	AttrStatus,
	AttrCreationTime,
	AttrReplicationGroupID,
	AttrMemberClusters,
	AttrClusterMode,
	AttrMultiAZ,
	AttrAutomaticFailover,
	AttrSnapshotRetention,
}

// Identity uniquely identifies a resource within one run.
type Identity struct {
	Profile string `json:"profile"`
	Region  string `json:"region"`
	Type    Type   `json:"type"`
	ID      string `json:"id"`
}

// Key returns the string form of the identity used for indexing.
func (i Identity) Key() string {
	return i.Profile + "|" + i.Region + "|" + string(i.Type) + "|" + i.ID
}

// Resource is one normalized cache resource. Values are never mutated after
// New returns; a changed resource is a new value with the same Identity.
type Resource struct {
	Identity
	AccountID   string            `json:"account_id"`
	ARN         string            `json:"arn"`
	Attrs       map[string]string `json:"attrs"`
	Tags        map[string]string `json:"tags,omitempty"`
	Fingerprint string            `json:"fingerprint"`
	ScannedAt   time.Time         `json:"scanned_at"`
}

// New builds a Resource. Attribute keys missing from attrs are filled with
// Absent, empty tag values are dropped and the fingerprint is computed.
func New(id Identity, accountID, arn string, attrs, tags map[string]string, scannedAt time.Time) Resource {
	a := make(map[string]string, len(AttrKeys))
	for _, k := range AttrKeys {
		a[k] = Absent
	}
	for k, v := range attrs {
		if v == "" {
			v = Absent
		}
		a[k] = v
	}

	var t map[string]string
	for k, v := range tags {
		if v == "" {
			continue
		}
		if t == nil {
			t = make(map[string]string, len(tags))
		}
		t[k] = v
	}

	r := Resource{
		Identity:  id,
		AccountID: accountID,
		ARN:       arn,
		Attrs:     a,
		Tags:      t,
		ScannedAt: scannedAt,
	}
	r.Fingerprint = Fingerprint(a, t)
	return r
}

// Attr returns the value of an attribute, or Absent.
func (r Resource) Attr(key string) string {
	if v, ok := r.Attrs[key]; ok {
		return v
	}
	return Absent
}

// Fingerprint hashes attributes and tags independent of map order.
func Fingerprint(attrs, tags map[string]string) string {
	h := sha256.New()
	writeSorted(h, "a", attrs)
	writeSorted(h, "t", tags)
	return hex.EncodeToString(h.Sum(nil))
}

func writeSorted(w io.Writer, prefix string, m map[string]string) {
	keys := slices.Sorted(maps.Keys(m))
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(prefix)
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	_, _ = w.Write([]byte(b.String()))
}
