// Package pubsub wraps the Pub/Sub v2 client with the checks the relay and
// the worker run before they start moving messages.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotConnected      = errors.New("pubsub client not initialized")
)

// lookup answers whether a fully qualified resource exists.
type lookup interface {
	topic(ctx context.Context, name string) error
	subscription(ctx context.Context, name string) error
}

type Client struct {
	client    *pubsub.Client
	admin     lookup
	projectID string
	topics    []string
}

// NewClient dials Pub/Sub and fails when a configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, admin: adminLookup{raw}, projectID: projectID, topics: TopicNames(cfg)}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": projectID, "topics": c.topics}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers an emulator endpoint, then inline credentials, then a
// key file, and otherwise leaves the library on application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if endpoint := strings.TrimSpace(gcp.PubSubEndpoint); endpoint != "" {
		return []option.ClientOption{
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// TopicNames lists the distinct configured topics in config order.
func TopicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.DomainTopic, cfg.BillingTopic} {
		name = strings.TrimSpace(name)
		if name == "" || contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Ping checks that every configured topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errNotConnected
	}
	if len(c.topics) == 0 {
		return errNoTopics
	}
	for _, name := range c.topics {
		if err := exists(ctx, "topic", name, TopicResourceName(c.projectID, name), c.admin.topic); err != nil {
			return err
		}
	}
	return nil
}

// CheckSubscription fails when the named subscription does not exist, so a
// consumer never sits on a subscription nobody created.
func (c *Client) CheckSubscription(ctx context.Context, name string) error {
	if c == nil || c.admin == nil {
		return errNotConnected
	}
	return exists(ctx, "subscription", name, SubscriptionResourceName(c.projectID, name), c.admin.subscription)
}

func exists(ctx context.Context, kind, name, fullName string, get func(context.Context, string) error) error {
	if fullName == "" {
		return fmt.Errorf("%s %q not configured", kind, name)
	}
	err := get(ctx, fullName)
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns a publisher for a topic id or full resource name; nil when unconnected.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Subscriber returns a subscriber for a subscription id or full resource name; nil when unconnected.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := SubscriptionResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func TopicResourceName(projectID, name string) string {
	return resourceName(projectID, "topics", name)
}

func SubscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, "subscriptions", name)
}

// resourceName expands an id into projects/<p>/<collection>/<id>. Names that
// are already fully qualified pass through untouched.
func resourceName(projectID, collection, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + collection + "/" + name
}

type adminLookup struct {
	client *pubsub.Client
}

func (a adminLookup) topic(ctx context.Context, name string) error {
	_, err := a.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return err
}

func (a adminLookup) subscription(ctx context.Context, name string) error {
	_, err := a.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	return err
}
