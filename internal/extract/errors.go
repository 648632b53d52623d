package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the class of fatal, never-retried setup errors.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownTemplate means the named template is not in the registry.
	// Errors carrying it also match ErrConfiguration.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrNoContainersFound means no container strategy matched anything.
	// This is an expected outcome; run the structure analyzer or supply
	// selectors.
	ErrNoContainersFound = errors.New("no message containers found")

	// ErrEmptyTranscript means containers were found but every turn
	// normalized to empty text. The content selector is usually wrong.
	ErrEmptyTranscript = errors.New("all turns were empty after normalization")

	// ErrChallengeDetected means the page is an anti-bot interstitial rather
	// than a conversation.
	ErrChallengeDetected = errors.New("anti-bot challenge detected")

	// ErrNotHTML means the input is binary content such as an image or PDF.
	ErrNotHTML = errors.New("input is not an HTML document")
)

// ConfigError describes a bad or contradictory configuration field.
type ConfigError struct {
	Field  string
	Reason string
	// Err is an optional more specific sentinel, e.g. ErrUnknownTemplate.
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match both ErrConfiguration and the specific sentinel.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}
