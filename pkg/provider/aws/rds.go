package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/opscart/rds-idle-manager/pkg/models"
)

// ListEligibleInstances pages through DB instances and keeps those carrying
// the eligibility tag.
func (c *Client) ListEligibleInstances(ctx context.Context) ([]models.Resource, error) {
	var resources []models.Resource
	var marker *string

	for {
		out, err := c.rds.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe DB instances: %w", err)
		}

		for _, dbi := range out.DBInstances {
			tags := tagMap(dbi.TagList)
			if !c.eligible(tags) {
				continue
			}
			resources = append(resources, models.Resource{
				ID:        aws.ToString(dbi.DBInstanceIdentifier),
				ARN:       aws.ToString(dbi.DBInstanceArn),
				Kind:      models.KindInstance,
				Status:    aws.ToString(dbi.DBInstanceStatus),
				Tags:      tags,
				ClusterID: aws.ToString(dbi.DBClusterIdentifier),
			})
		}

		marker = out.Marker
		if marker == nil {
			break
		}
	}

	return resources, nil
}

// ListEligibleClusters pages through DB clusters and keeps those carrying
// the eligibility tag, recording each cluster's members and writer.
func (c *Client) ListEligibleClusters(ctx context.Context) ([]models.Resource, error) {
	var resources []models.Resource
	var marker *string

	for {
		out, err := c.rds.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("describe DB clusters: %w", err)
		}

		for _, dbc := range out.DBClusters {
			tags := tagMap(dbc.TagList)
			if !c.eligible(tags) {
				continue
			}

			members := make([]models.ClusterMember, 0, len(dbc.DBClusterMembers))
			for _, m := range dbc.DBClusterMembers {
				members = append(members, models.ClusterMember{
					ID:       aws.ToString(m.DBInstanceIdentifier),
					IsWriter: aws.ToBool(m.IsClusterWriter),
				})
			}

			resources = append(resources, models.Resource{
				ID:      aws.ToString(dbc.DBClusterIdentifier),
				ARN:     aws.ToString(dbc.DBClusterArn),
				Kind:    models.KindCluster,
				Status:  aws.ToString(dbc.Status),
				Tags:    tags,
				Members: members,
			})
		}

		marker = out.Marker
		if marker == nil {
			break
		}
	}

	return resources, nil
}

// GetTags resolves the current tag set of a resource by ARN
func (c *Client) GetTags(ctx context.Context, resourceARN string) (map[string]string, error) {
	out, err := c.rds.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
		ResourceName: aws.String(resourceARN),
	})
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", resourceARN, err)
	}
	return tagMap(out.TagList), nil
}

func (c *Client) StopInstance(ctx context.Context, id string) error {
	_, err := c.rds.StopDBInstance(ctx, &rds.StopDBInstanceInput{
		DBInstanceIdentifier: aws.String(id),
	})
	return err
}

func (c *Client) StartInstance(ctx context.Context, id string) error {
	_, err := c.rds.StartDBInstance(ctx, &rds.StartDBInstanceInput{
		DBInstanceIdentifier: aws.String(id),
	})
	return err
}

func (c *Client) StopCluster(ctx context.Context, id string) error {
	_, err := c.rds.StopDBCluster(ctx, &rds.StopDBClusterInput{
		DBClusterIdentifier: aws.String(id),
	})
	return err
}

func (c *Client) StartCluster(ctx context.Context, id string) error {
	_, err := c.rds.StartDBCluster(ctx, &rds.StartDBClusterInput{
		DBClusterIdentifier: aws.String(id),
	})
	return err
}

// eligible checks the opt-in marker; the tag value comparison is
// case-insensitive to match how operators usually type it.
func (c *Client) eligible(tags map[string]string) bool {
	v, ok := tags[c.tagKey]
	return ok && strings.EqualFold(v, c.tagValue)
}

func tagMap(tags []rdstypes.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}
