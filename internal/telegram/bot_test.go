package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standupbuddy/standupbuddy/internal/conversation"
)

func TestInlineKeyboard_MapsRowsAndActions(t *testing.T) {
	kb := inlineKeyboard([][]conversation.Button{
		{{Label: "A", Action: "a:1"}, {Label: "B", Action: "b:2"}},
		{{Label: "Back", Action: "back:menu"}},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[0], 2)

	btn := kb.InlineKeyboard[0][1]
	assert.Equal(t, "B", btn.Text)
	require.NotNil(t, btn.CallbackData)
	assert.Equal(t, "b:2", *btn.CallbackData)
}

func TestInlineKeyboard_EmptyIsNil(t *testing.T) {
	assert.Nil(t, inlineKeyboard(nil))
	assert.Nil(t, inlineKeyboard([][]conversation.Button{}))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", displayName(&tgbotapi.User{FirstName: "Ada", LastName: "Lovelace"}))
	assert.Equal(t, "Ada", displayName(&tgbotapi.User{FirstName: "Ada"}))
	assert.Equal(t, "ada42", displayName(&tgbotapi.User{UserName: "ada42"}))
}
