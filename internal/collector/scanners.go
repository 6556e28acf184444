package collector

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	ectypes "github.com/aws/aws-sdk-go-v2/service/elasticache/types"

	"github.com/LeoncioXavier/elasticache-inventory/internal/awsclient"
	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// scanReplicationGroups scans ElastiCache replication groups.
func (s *scan) scanReplicationGroups(ctx context.Context, client awsclient.ElastiCacheAPI, accountID string) ([]resource.Resource, error) {
	var groups []ectypes.ReplicationGroup
	var marker *string

	for {
		var output *elasticache.DescribeReplicationGroupsOutput
		err := s.call(ctx, "describe replication groups", func(ctx context.Context) error {
			var err error
			output, err = client.DescribeReplicationGroups(ctx, &elasticache.DescribeReplicationGroupsInput{Marker: marker})
			return err
		})
		if err != nil {
			return nil, err
		}

		groups = append(groups, output.ReplicationGroups...)

		if aws.ToString(output.Marker) == "" {
			break
		}
		marker = output.Marker
	}

	resources := make([]resource.Resource, 0, len(groups))
	for _, group := range groups {
		r, err := s.convertReplicationGroup(ctx, client, accountID, group)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

// scanCacheClusters scans ElastiCache cache clusters.
func (s *scan) scanCacheClusters(ctx context.Context, client awsclient.ElastiCacheAPI, accountID string) ([]resource.Resource, error) {
	var clusters []ectypes.CacheCluster
	var marker *string

	for {
		var output *elasticache.DescribeCacheClustersOutput
		err := s.call(ctx, "describe cache clusters", func(ctx context.Context) error {
			var err error
			output, err = client.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
				Marker:            marker,
				ShowCacheNodeInfo: aws.Bool(s.task.Options.NodeInfo),
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		clusters = append(clusters, output.CacheClusters...)

		if aws.ToString(output.Marker) == "" {
			break
		}
		marker = output.Marker
	}

	resources := make([]resource.Resource, 0, len(clusters))
	for _, cluster := range clusters {
		r, err := s.convertCacheCluster(ctx, client, accountID, cluster)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

func (s *scan) convertReplicationGroup(ctx context.Context, client awsclient.ElastiCacheAPI, accountID string, group ectypes.ReplicationGroup) (resource.Resource, error) {
	id := aws.ToString(group.ReplicationGroupId)
	if id == "" {
		return resource.Resource{}, fmt.Errorf("replication group without id: %w", failure.ErrMalformedRecord)
	}

	members := slices.Clone(group.MemberClusters)
	slices.Sort(members)

	attrs := map[string]string{
		resource.AttrEngine:             aws.ToString(group.Engine),
		resource.AttrStatus:             aws.ToString(group.Status),
		resource.AttrNodeTypes:          aws.ToString(group.CacheNodeType),
		resource.AttrNumNodes:           strconv.Itoa(len(members)),
		resource.AttrAtRestEncryption:   boolAttr(group.AtRestEncryptionEnabled),
		resource.AttrTransitEncryption:  boolAttr(group.TransitEncryptionEnabled),
		resource.AttrAuthTokenEnabled:   boolAttr(group.AuthTokenEnabled),
		resource.AttrEndpoint:           groupEndpoint(group),
		resource.AttrCreationTime:       timeAttr(group.ReplicationGroupCreateTime),
		resource.AttrReplicationGroupID: id,
		resource.AttrMemberClusters:     strings.Join(members, ";"),
		resource.AttrClusterMode:        clusterMode(group),
		resource.AttrMultiAZ:            string(group.MultiAZ),
		resource.AttrAutomaticFailover:  string(group.AutomaticFailover),
		resource.AttrSnapshotRetention:  int32Attr(group.SnapshotRetentionLimit),
	}

	if s.task.Options.NodeInfo {
		detail, err := s.memberDetail(ctx, client, members)
		if err != nil {
			return resource.Resource{}, err
		}
		detail.apply(attrs)
	}

	arn := aws.ToString(group.ARN)
	if arn == "" {
		arn = constructARN(s.task.Region, accountID, resource.TypeReplicationGroup, id)
	}

	tags, err := s.fetchTags(ctx, client, arn)
	if err != nil {
		return resource.Resource{}, err
	}

	return resource.New(s.identity(resource.TypeReplicationGroup, id), accountID, arn, attrs, tags, s.at), nil
}

func (s *scan) convertCacheCluster(ctx context.Context, client awsclient.ElastiCacheAPI, accountID string, cluster ectypes.CacheCluster) (resource.Resource, error) {
	id := aws.ToString(cluster.CacheClusterId)
	if id == "" {
		return resource.Resource{}, fmt.Errorf("cache cluster without id: %w", failure.ErrMalformedRecord)
	}

	attrs := map[string]string{
		resource.AttrEngine:             aws.ToString(cluster.Engine),
		resource.AttrEngineVersion:      aws.ToString(cluster.EngineVersion),
		resource.AttrNodeTypes:          aws.ToString(cluster.CacheNodeType),
		resource.AttrNumNodes:           strconv.Itoa(nodeCount(cluster)),
		resource.AttrAtRestEncryption:   boolAttr(cluster.AtRestEncryptionEnabled),
		resource.AttrTransitEncryption:  boolAttr(cluster.TransitEncryptionEnabled),
		resource.AttrAuthTokenEnabled:   boolAttr(cluster.AuthTokenEnabled),
		resource.AttrEndpoint:           clusterEndpoint(cluster),
		resource.AttrStatus:             aws.ToString(cluster.CacheClusterStatus),
		resource.AttrCreationTime:       timeAttr(cluster.CacheClusterCreateTime),
		resource.AttrReplicationGroupID: aws.ToString(cluster.ReplicationGroupId),
		resource.AttrSnapshotRetention:  int32Attr(cluster.SnapshotRetentionLimit),
	}

	arn := aws.ToString(cluster.ARN)
	if arn == "" {
		arn = constructARN(s.task.Region, accountID, resource.TypeCluster, id)
	}

	tags, err := s.fetchTags(ctx, client, arn)
	if err != nil {
		return resource.Resource{}, err
	}

	return resource.New(s.identity(resource.TypeCluster, id), accountID, arn, attrs, tags, s.at), nil
}

func (s *scan) identity(typ resource.Type, id string) resource.Identity {
	return resource.Identity{Profile: s.task.Profile, Region: s.task.Region, Type: typ, ID: id}
}

// nodeDetail aggregates node information across replication group members.
type nodeDetail struct {
	nodeTypes     []string
	engineVersion string
	nodes         int
	earliest      *time.Time
	described     int
}

func (d nodeDetail) apply(attrs map[string]string) {
	if d.described == 0 {
		return
	}
	slices.Sort(d.nodeTypes)
	if types := slices.Compact(d.nodeTypes); len(types) > 0 {
		attrs[resource.AttrNodeTypes] = strings.Join(types, ";")
	}
	attrs[resource.AttrNumNodes] = strconv.Itoa(d.nodes)
	if d.engineVersion != "" {
		attrs[resource.AttrEngineVersion] = d.engineVersion
	}
	if d.earliest != nil {
		attrs[resource.AttrCreationTime] = timeAttr(d.earliest)
	}
}

// memberDetail describes each member cluster. A member that cannot be
// described is skipped with a warning unless the session has expired.
func (s *scan) memberDetail(ctx context.Context, client awsclient.ElastiCacheAPI, members []string) (nodeDetail, error) {
	var d nodeDetail
	for _, member := range members {
		var output *elasticache.DescribeCacheClustersOutput
		err := s.call(ctx, "describe member cluster "+member, func(ctx context.Context) error {
			var err error
			output, err = client.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
				CacheClusterId:    aws.String(member),
				ShowCacheNodeInfo: aws.Bool(true),
			})
			return err
		})
		if err != nil {
			if failure.Classify(err).Kind == failure.KindCredentialExpired {
				return nodeDetail{}, err
			}
			s.warn(err, "member cluster detail unavailable")
			continue
		}

		for _, cc := range output.CacheClusters {
			d.described++
			if nt := aws.ToString(cc.CacheNodeType); nt != "" {
				d.nodeTypes = append(d.nodeTypes, nt)
			}
			if d.engineVersion == "" {
				d.engineVersion = aws.ToString(cc.EngineVersion)
			}
			d.nodes += nodeCount(cc)
			if t := cc.CacheClusterCreateTime; t != nil && (d.earliest == nil || t.Before(*d.earliest)) {
				d.earliest = t
			}
		}
	}
	return d, nil
}

// fetchTags returns the requested tags of arn. A lookup failure leaves the
// resource untagged with a warning unless the session has expired.
func (s *scan) fetchTags(ctx context.Context, client awsclient.ElastiCacheAPI, arn string) (map[string]string, error) {
	if len(s.tagKeys) == 0 {
		return nil, nil
	}

	var output *elasticache.ListTagsForResourceOutput
	err := s.call(ctx, "list tags", func(ctx context.Context) error {
		var err error
		output, err = client.ListTagsForResource(ctx, &elasticache.ListTagsForResourceInput{ResourceName: aws.String(arn)})
		return err
	})
	if err != nil {
		if failure.Classify(err).Kind == failure.KindCredentialExpired {
			return nil, err
		}
		s.warn(err, "tags unavailable for "+arn)
		return nil, nil
	}

	tags := make(map[string]string, len(s.tagKeys))
	for _, tag := range output.TagList {
		key := aws.ToString(tag.Key)
		if slices.Contains(s.tagKeys, key) {
			tags[key] = aws.ToString(tag.Value)
		}
	}
	return tags, nil
}

// constructARN builds the ARN of a resource the API returned without one.
func constructARN(region, accountID string, typ resource.Type, id string) string {
	kind := "cluster"
	if typ == resource.TypeReplicationGroup {
		kind = "replicationgroup"
	}
	return fmt.Sprintf("arn:aws:elasticache:%s:%s:%s:%s", region, accountID, kind, id)
}

// nodeCount prefers the described nodes and falls back to NumCacheNodes.
func nodeCount(cluster ectypes.CacheCluster) int {
	if n := len(cluster.CacheNodes); n > 0 {
		return n
	}
	return int(aws.ToInt32(cluster.NumCacheNodes))
}

func groupEndpoint(group ectypes.ReplicationGroup) string {
	if ep := endpointAttr(group.ConfigurationEndpoint); ep != "" {
		return ep
	}
	for _, ng := range group.NodeGroups {
		if ep := endpointAttr(ng.PrimaryEndpoint); ep != "" {
			return ep
		}
	}
	return ""
}

func clusterEndpoint(cluster ectypes.CacheCluster) string {
	if ep := endpointAttr(cluster.ConfigurationEndpoint); ep != "" {
		return ep
	}
	for _, node := range cluster.CacheNodes {
		if ep := endpointAttr(node.Endpoint); ep != "" {
			return ep
		}
	}
	return ""
}

func endpointAttr(ep *ectypes.Endpoint) string {
	if ep == nil || aws.ToString(ep.Address) == "" {
		return ""
	}
	if ep.Port == nil {
		return aws.ToString(ep.Address)
	}
	return net.JoinHostPort(aws.ToString(ep.Address), strconv.Itoa(int(aws.ToInt32(ep.Port))))
}

func clusterMode(group ectypes.ReplicationGroup) string {
	if group.ClusterMode != "" {
		return string(group.ClusterMode)
	}
	if group.ClusterEnabled == nil {
		return ""
	}
	if *group.ClusterEnabled {
		return "enabled"
	}
	return "disabled"
}

// Empty strings become resource.Absent in resource.New.

func boolAttr(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func int32Attr(v *int32) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func timeAttr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
