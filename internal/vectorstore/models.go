package vectorstore

// ItemType identifies how an item's content is interpreted.
type ItemType string

const (
	// TypeText is a plain text item; Content holds the text.
	TypeText ItemType = "text"
	// TypeImage is an image item; Content holds the image reference.
	TypeImage ItemType = "image"
	// TypeImageText is a composite item; Content holds free text and an
	// image reference joined by the " | " delimiter.
	TypeImageText ItemType = "image-text"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeImageText:
		return true
	}
	return false
}

// Metadata is the mutable portion of a stored item.
type Metadata struct {
	// Type is fixed at creation and drives re-embedding and re-extraction.
	Type ItemType `json:"type"`

	// Title is a short human label, required and non-empty.
	Title string `json:"title"`

	// Content is the modality-dependent payload.
	Content string `json:"content"`

	// URL is an opaque auxiliary string.
	URL string `json:"url"`

	// Date is an opaque creation timestamp.
	Date string `json:"date"`

	// ExtractedInfo holds the serialized extraction result. Empty means
	// extraction has not been attempted; an error marker records a terminal
	// failure.
	ExtractedInfo string `json:"extracted_info,omitempty"`
}

// Item is a persisted retrievable unit.
type Item struct {
	// ID is assigned at insert time and immutable.
	ID string `json:"id"`

	Metadata
}

// Neighbor is a single nearest-neighbor query hit.
type Neighbor struct {
	// Distance is the cosine distance to the query embedding (smaller is
	// closer).
	Distance float32 `json:"distance"`

	Item Item `json:"item"`
}
