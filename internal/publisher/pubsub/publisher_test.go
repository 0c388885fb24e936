package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/sgs-catalog/internal/publisher/pubsub"
)

type notice struct {
	RunID string `json:"run_id"`
}

func (n notice) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID}
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := gpubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "catalog-ready")
	require.NoError(t, err)

	pub := pubsub.New(client, nil)
	id, err := pub.Publish(ctx, "catalog-ready", notice{RunID: "run-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got notice
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, "run-1", msgs[0].Attributes["run_id"])

	require.NoError(t, pub.Close())
}

func TestPublisher_RequiresTopic(t *testing.T) {
	pub := pubsub.New(nil, nil)
	_, err := pub.Publish(context.Background(), "catalog-ready", notice{})
	require.Error(t, err)
	require.NoError(t, pub.Close())
}
