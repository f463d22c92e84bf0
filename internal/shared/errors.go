package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Storage errors
	ErrStorageWrite       = fmt.Errorf("storage write failed")
	ErrStorageRead        = fmt.Errorf("storage read failed")
	ErrVerification       = fmt.Errorf("read-after-write verification failed")
	ErrUnsupportedBackend = fmt.Errorf("unsupported storage backend")

	// Messaging errors
	ErrContextInvalidated = fmt.Errorf("extension context invalidated")
	ErrMessageChannel     = fmt.Errorf("message channel closed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Collection errors
	ErrExtractionFieldMissing = fmt.Errorf("required extraction field missing")
	ErrAlreadyCollecting      = fmt.Errorf("collection already in progress")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrUnknownAction   = fmt.Errorf("unknown action")
)
