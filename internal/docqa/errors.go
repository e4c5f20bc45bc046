package docqa

import "errors"

// Service errors.
var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentNotReady     = errors.New("document is not indexed yet")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnsupportedFormat    = errors.New("unsupported file format")
	ErrEmptyDocument        = errors.New("document contains no text")
)
