package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "first"},
			{Type: "text", Text: ""},
			{Type: "text", Text: "second"},
		},
	}
	assert.Equal(t, "first\nsecond", ExtractText(resp))
}

func TestExtractText_Nil(t *testing.T) {
	assert.Equal(t, "", ExtractText(nil))
}

func TestExtractText_Empty(t *testing.T) {
	assert.Equal(t, "", ExtractText(&MessageResponse{}))
}

func TestCleanJSON_Plain(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, CleanJSON(`{"a": 1}`))
}

func TestCleanJSON_JSONFence(t *testing.T) {
	text := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, CleanJSON(text))
}

func TestCleanJSON_BareFence(t *testing.T) {
	text := "```\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, CleanJSON(text))
}

func TestCleanJSON_ProseWrapped(t *testing.T) {
	text := `Here is the result: {"a": 1} as requested.`
	assert.Equal(t, `{"a": 1}`, CleanJSON(text))
}

func TestCleanJSON_Whitespace(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, CleanJSON("  \n{\"a\": 1}\n  "))
}
