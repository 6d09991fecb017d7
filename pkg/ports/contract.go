package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	conversationID := "contract-test-conversation-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		sess := domain.NewSession(conversationID, "s0")
		sess.Append(domain.RoleUser, "hello")
		sess.Status = domain.StatusContinue

		err := store.Save(ctx, conversationID, sess)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sess.ActiveStageID, loaded.ActiveStageID)
		assert.Equal(t, domain.StatusContinue, loaded.Status)
		require.Len(t, loaded.Messages, 1)
		assert.Equal(t, "hello", loaded.Messages[0].Text)
	})

	t.Run("Load Is Isolated From Caller Mutation", func(t *testing.T) {
		sess := domain.NewSession(conversationID, "s0")
		require.NoError(t, store.Save(ctx, conversationID, sess))

		sess.ActiveStageID = "mutated"
		sess.Append(domain.RoleUser, "late")

		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err)
		assert.Equal(t, "s0", loaded.ActiveStageID)
		assert.Empty(t, loaded.Messages)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+conversationID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, conversationID, domain.NewSession(conversationID, "s0"))
		require.NoError(t, err)

		err = store.Delete(ctx, conversationID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, conversationID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := conversationID + "-1"
		id2 := conversationID + "-2"
		_ = store.Save(ctx, id1, domain.NewSession(id1, "s0"))
		_ = store.Save(ctx, id2, domain.NewSession(id2, "s0"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
