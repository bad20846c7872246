package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkdown_BoldAndCode(t *testing.T) {
	res := ParseMarkdown("**Today** use `2025-05-01`")

	assert.Equal(t, "Today use 2025-05-01", res.Text)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "bold", res.Entities[0].Type)
	assert.Equal(t, 0, res.Entities[0].Offset)
	assert.Equal(t, 5, res.Entities[0].Length)
	assert.Equal(t, "code", res.Entities[1].Type)
	assert.Equal(t, 10, res.Entities[1].Offset)
	assert.Equal(t, 10, res.Entities[1].Length)
}

func TestParseMarkdown_HeaderAndStrike(t *testing.T) {
	res := ParseMarkdown("# Agenda\n~~Buy milk~~\n")

	assert.Equal(t, "Agenda\nBuy milk", res.Text)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "bold", res.Entities[0].Type)
	assert.Equal(t, "strikethrough", res.Entities[1].Type)
	assert.Equal(t, 7, res.Entities[1].Offset)
	assert.Equal(t, 8, res.Entities[1].Length)
}

func TestParseMarkdown_UTF16Offsets(t *testing.T) {
	res := ParseMarkdown("⏰ **Reminder** 🥛")

	assert.Equal(t, "⏰ Reminder 🥛", res.Text)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, 2, res.Entities[0].Offset)
	assert.Equal(t, 8, res.Entities[0].Length)
}

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 5, UTF16Len("hello"))
	assert.Equal(t, 2, UTF16Len("🥛"))
	assert.Equal(t, 1, UTF16Len("é"))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "urgent 'x'", Escape("**urgent** `x`"))
}
