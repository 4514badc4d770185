package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lootbay/marketplace-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	c := &Client{projectID: "lootbay-dev"}

	tests := []struct {
		kind, in, want string
	}{
		{"topics", "orders", "projects/lootbay-dev/topics/orders"},
		{"topics", "projects/other/topics/orders", "projects/other/topics/orders"},
		{"subscriptions", " orders-sub ", "projects/lootbay-dev/subscriptions/orders-sub"},
		{"subscriptions", "projects/other/topics/orders", "projects/lootbay-dev/subscriptions/projects/other/topics/orders"},
		{"topics", "", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, c.resourceName(tt.kind, tt.in), "%s %q", tt.kind, tt.in)
	}

	require.Empty(t, (&Client{}).resourceName("topics", "orders"))
}

func TestConfiguredNames(t *testing.T) {
	cfg := config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: " ", OrdersSubscription: "orders-sub"}
	require.Equal(t, []string{"orders"}, topicNames(cfg))
	require.Equal(t, []string{"orders-sub"}, subscriptionNames(cfg))
	require.Empty(t, subscriptionNames(config.PubSubConfig{}))
}

func TestClientOptions(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}"}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/etc/gcp.json"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestUninitializedClientFailsThroughResult(t *testing.T) {
	var c *Client
	_, err := c.Publish(context.Background(), "orders", &Message{Data: []byte("{}")}).Get(context.Background())
	require.ErrorIs(t, err, errNotInitialized)
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	require.NoError(t, c.Close())
}
