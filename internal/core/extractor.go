package core

// TextExtractor turns raw document bytes into plain text.
// The declared media type selects the parsing strategy.
type TextExtractor interface {
	Extract(data []byte, mediaType string) (string, error)
}
