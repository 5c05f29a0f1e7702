package retriever

import (
	"fmt"
	"strings"
)

// compositeDelimiter joins the free-text part and the image reference of an
// image-text item's content.
const compositeDelimiter = " | "

// ComposeContent encodes an image-text item's content. The free text must
// not contain the delimiter character, otherwise splitting would be
// ambiguous.
func ComposeContent(text, imagePath string) (string, error) {
	if strings.Contains(text, "|") {
		return "", fmt.Errorf("%w: content must not contain %q", ErrValidation, "|")
	}
	return text + compositeDelimiter + imagePath, nil
}

// SplitComposite splits an image-text item's content back into its free-text
// part and image reference. ok is false when the content carries no
// delimiter.
func SplitComposite(content string) (text, imagePath string, ok bool) {
	text, imagePath, ok = strings.Cut(content, "|")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(text), strings.TrimSpace(imagePath), true
}
