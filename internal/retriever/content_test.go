package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeAndSplitRoundTrip(t *testing.T) {
	content, err := ComposeContent("a cat", "/imgs/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "a cat | /imgs/cat.png", content)

	text, imagePath, ok := SplitComposite(content)
	require.True(t, ok)
	assert.Equal(t, "a cat", text)
	assert.Equal(t, "/imgs/cat.png", imagePath)
}

func TestComposeContentRejectsDelimiter(t *testing.T) {
	_, err := ComposeContent("a | b", "/imgs/cat.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSplitComposite(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantText string
		wantPath string
		wantOK   bool
	}{
		{name: "standard", content: "a cat | /imgs/cat.png", wantText: "a cat", wantPath: "/imgs/cat.png", wantOK: true},
		{name: "tight delimiter", content: "a cat|/imgs/cat.png", wantText: "a cat", wantPath: "/imgs/cat.png", wantOK: true},
		{name: "no delimiter", content: "just text", wantOK: false},
		{name: "empty", content: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, imagePath, ok := SplitComposite(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantPath, imagePath)
		})
	}
}
