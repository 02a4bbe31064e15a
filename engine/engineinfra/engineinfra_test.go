package engineinfra

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/database"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowDoc = `{"nodes":[{"id":"1","type":"message","data":{"content":"hi"}}],"edges":[]}`

func repositories(t *testing.T) map[string]engine.FlowRepository {
	t.Helper()

	db, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlite := NewSQLiteFlowRepository(db)
	require.NoError(t, sqlite.EnsureSchema(context.Background()))

	return map[string]engine.FlowRepository{
		"sqlite": sqlite,
		"memory": NewMemoryFlowRepository(),
	}
}

func TestFlowRepositoryRoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := repo.SaveFlow(ctx, []byte(flowDoc))
			require.NoError(t, err)
			second, err := repo.SaveFlow(ctx, []byte(`{"nodes":[]}`))
			require.NoError(t, err)

			assert.Equal(t, "1", first.String())
			assert.Equal(t, "2", second.String())

			doc, err := repo.GetFlow(ctx, first)
			require.NoError(t, err)
			assert.JSONEq(t, flowDoc, string(doc))
		})
	}
}

func TestFlowRepositoryNotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"99", "abc"} {
				_, err := repo.GetFlow(context.Background(), kernel.FlowID(id))
				require.Error(t, err)
				assert.True(t, errx.IsType(err, errx.TypeNotFound), id)
			}
		})
	}
}

func TestFlowRepositoryRejectsInvalidJSON(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.SaveFlow(context.Background(), []byte(`{"nodes":`))
			require.Error(t, err)
			assert.True(t, errx.IsType(err, errx.TypeValidation))
		})
	}
}

func TestMemoryReplyRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryReplyRegistry(time.Hour)

	cp, err := r.Take(ctx, "chat")
	require.NoError(t, err)
	assert.Nil(t, cp)

	older := engine.NewCheckpoint(engine.NewRunContext("1", "chat", nil), engine.SuspendForReply)
	newer := engine.NewCheckpoint(engine.NewRunContext("1", "chat", nil), engine.SuspendForReply)
	require.NoError(t, r.Await(ctx, older))
	require.NoError(t, r.Await(ctx, newer))

	cp, err = r.Take(ctx, "chat")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, newer.ID, cp.ID)

	cp, err = r.Take(ctx, "chat")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestMemoryReplyRegistryExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryReplyRegistry(time.Millisecond)

	require.NoError(t, r.Await(ctx, engine.NewCheckpoint(engine.NewRunContext("1", "chat", nil), engine.SuspendForReply)))
	time.Sleep(5 * time.Millisecond)

	cp, err := r.Take(ctx, "chat")
	require.NoError(t, err)
	assert.Nil(t, cp)
}
