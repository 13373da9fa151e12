// Package pubsub wraps the Pub/Sub v2 client used by the relay and the review worker.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNothingRequired   = errors.New("pubsub client needs at least one topic or subscription")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Requirements names the resources a process depends on. Each one is checked
// at startup and again on every Ping.
type Requirements struct {
	Topics        []string
	Subscriptions []string
}

// PublisherRequirements is what the outbox relay needs.
func PublisherRequirements(cfg config.PubSubConfig) Requirements {
	return Requirements{Topics: []string{cfg.TokenizationTopic}}
}

// ConsumerRequirements is what the review worker needs.
func ConsumerRequirements(cfg config.PubSubConfig) Requirements {
	return Requirements{Subscriptions: []string{cfg.TokenizationSubscription}}
}

type Client struct {
	client    *gcppubsub.Client
	projectID string
	cfg       config.PubSubConfig
	topics    []string
	subs      []string

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

// NewClient dials Pub/Sub and fails when a required topic or subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, req Requirements, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	c := &Client{
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*gcppubsub.Publisher{},
	}
	for _, name := range req.Topics {
		if full := TopicName(projectID, name); full != "" {
			c.topics = append(c.topics, full)
		}
	}
	for _, name := range req.Subscriptions {
		if full := SubscriptionName(projectID, name); full != "" {
			c.subs = append(c.subs, full)
		}
	}
	if len(c.topics) == 0 && len(c.subs) == 0 {
		return nil, errNothingRequired
	}

	psClient, err := gcppubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c.client = psClient

	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        c.topics,
			"subscriptions": c.subs,
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// Ping checks that every required resource still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		if err := missing("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.subs {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
		if err := missing("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func missing(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns the shared publisher for a topic ID or resource name.
func (c *Client) Publisher(name string) *gcppubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := TopicName(c.projectID, name)
	if full == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	c.publishers[full] = p
	return p
}

// Subscription returns a subscriber for a subscription ID or resource name.
func (c *Client) Subscription(name string) *gcppubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := SubscriptionName(c.projectID, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// TokenizationSubscription returns the review queue subscriber.
func (c *Client) TokenizationSubscription() *gcppubsub.Subscriber {
	return c.Subscription(c.cfg.TokenizationSubscription)
}

// Close flushes cached publishers before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// TopicName expands a topic ID to projects/<project>/topics/<id>.
// Full resource names pass through unchanged.
func TopicName(projectID, name string) string {
	return resourceName(projectID, "topics", name)
}

// SubscriptionName expands a subscription ID the same way TopicName does.
func SubscriptionName(projectID, name string) string {
	return resourceName(projectID, "subscriptions", name)
}

func resourceName(projectID, collection, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+collection+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" || strings.Contains(n, "/") {
		return ""
	}
	return "projects/" + p + "/" + collection + "/" + n
}
