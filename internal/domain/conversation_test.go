package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	conv := NewConversation("")
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, DefaultTitle, conv.Title)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)

	named := NewConversation("Projet")
	assert.Equal(t, "Projet", named.Title)
	assert.NotEqual(t, conv.ID, named.ID)
}

func TestConversation_AppendDerivesTitle(t *testing.T) {
	t.Run("first user message sets the title", func(t *testing.T) {
		conv := NewConversation("")
		conv.Append(NewUserMessage("Bonjour"))
		assert.Equal(t, "Bonjour...", conv.Title)
	})

	t.Run("long messages are truncated", func(t *testing.T) {
		conv := NewConversation("")
		conv.Append(NewUserMessage(strings.Repeat("a", 80)))
		assert.Equal(t, strings.Repeat("a", 50)+"...", conv.Title)
	})

	t.Run("explicit title is never overwritten", func(t *testing.T) {
		conv := NewConversation("Projet")
		conv.Append(NewUserMessage("Bonjour"))
		assert.Equal(t, "Projet", conv.Title)
	})

	t.Run("later messages do not retitle", func(t *testing.T) {
		conv := NewConversation("")
		conv.Append(NewUserMessage("Bonjour"))
		conv.Append(NewUserMessage("Autre question"))
		assert.Equal(t, "Bonjour...", conv.Title)
	})

	t.Run("assistant message does not derive a title", func(t *testing.T) {
		conv := NewConversation("")
		conv.Append(Message{Role: RoleAssistant, Content: "Bienvenue"})
		assert.Equal(t, DefaultTitle, conv.Title)
	})
}

func TestConversation_UpdatedAtStrictlyIncreases(t *testing.T) {
	conv := NewConversation("")

	prev := conv.UpdatedAt
	for i := 0; i < 100; i++ {
		conv.Append(NewUserMessage("x"))
		assert.True(t, conv.UpdatedAt.After(prev), "UpdatedAt must strictly increase")
		prev = conv.UpdatedAt
	}
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Bonjour...", DeriveTitle("Bonjour"))
	assert.Equal(t, "Bonjour...", DeriveTitle("  Bonjour  "))

	exact := strings.Repeat("é", 50)
	assert.Equal(t, exact+"...", DeriveTitle(exact))
	assert.Equal(t, exact+"...", DeriveTitle(exact+"overflow"))
}

func TestConversation_Matches(t *testing.T) {
	conv := NewConversation("Recettes de cuisine")
	conv.Append(NewUserMessage("Comment faire une Tarte aux pommes ?"))

	assert.True(t, conv.Matches(""))
	assert.True(t, conv.Matches("RECETTES"))
	assert.True(t, conv.Matches("tarte"))
	assert.False(t, conv.Matches("quiche"))
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("Original")
	conv.Append(NewUserMessage("Bonjour"))

	clone := conv.Clone()
	clone.Title = "Modifié"
	clone.Messages[0].Content = "changé"
	clone.Messages = append(clone.Messages, NewUserMessage("encore"))

	assert.Equal(t, "Original", conv.Title)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "Bonjour", conv.Messages[0].Content)
}

func TestConversation_TransientFieldsNotSerialized(t *testing.T) {
	conv := NewConversation("")
	conv.AwaitingReply = true
	conv.LastError = "boom"

	raw, err := json.Marshal(conv)
	require.NoError(t, err)

	var decoded Conversation
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.False(t, decoded.AwaitingReply)
	assert.Empty(t, decoded.LastError)
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "initializing", Initializing.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "refreshing", Refreshing.String())
	assert.Equal(t, "unknown", SessionState(99).String())
}
