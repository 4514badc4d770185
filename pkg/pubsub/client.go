// Package pubsub wraps the Cloud Pub/Sub v2 client with the topic naming,
// readiness checks and publisher caching the binaries share.
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

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Message is re-exported so callers do not import the SDK for one type.
type Message = gcppubsub.Message

// Result is the pending outcome of a Publish call.
type Result interface {
	Get(ctx context.Context) (serverID string, err error)
}

type failedResult struct{ err error }

func (r failedResult) Get(context.Context) (string, error) { return "", r.err }

// Client owns the SDK client and one publisher handle per topic.
type Client struct {
	sdk       *gcppubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when a configured topic or
// subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	sdk, err := gcppubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		sdk:        sdk,
		projectID:  projectID,
		cfg:        cfg,
		publishers: make(map[string]*gcppubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = sdk.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": projectID,
			"topics":  topicNames(cfg),
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

func topicNames(cfg config.PubSubConfig) []string {
	return nonEmpty(cfg.OrdersTopic, cfg.NotificationTopic)
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	return nonEmpty(cfg.OrdersSubscription)
}

func nonEmpty(values ...string) []string {
	var names []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			names = append(names, v)
		}
	}
	return names
}

// resourceName expands a short id to projects/<p>/<kind>/<id>. Fully
// qualified names pass through.
func (c *Client) resourceName(kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" || c == nil {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}

// Ping confirms every configured topic and subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sdk == nil {
		return errNotInitialized
	}
	for _, topic := range topicNames(c.cfg) {
		_, err := c.sdk.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resourceName("topics", topic)})
		if err := describeLookup("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range subscriptionNames(c.cfg) {
		_, err := c.sdk.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resourceName("subscriptions", sub)})
		if err := describeLookup("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func (c *Client) publisher(topic string) (*gcppubsub.Publisher, error) {
	if c == nil || c.sdk == nil {
		return nil, errNotInitialized
	}
	full := c.resourceName("topics", topic)
	if full == "" {
		return nil, fmt.Errorf("topic %q not configured", topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub, nil
	}
	pub := c.sdk.Publisher(full)
	c.publishers[full] = pub
	return pub, nil
}

// Publish queues msg on topic. The returned Result reports the server id or
// the publish error; an unknown topic fails through the Result as well.
func (c *Client) Publish(ctx context.Context, topic string, msg *Message) Result {
	pub, err := c.publisher(topic)
	if err != nil {
		return failedResult{err: err}
	}
	return pub.Publish(ctx, msg)
}

// NotificationTopic is the topic user notifications are published on.
func (c *Client) NotificationTopic() string {
	if c == nil {
		return ""
	}
	return c.cfg.NotificationTopic
}

// Close flushes every publisher handle and releases the SDK client.
func (c *Client) Close() error {
	if c == nil || c.sdk == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.sdk.Close()
}
