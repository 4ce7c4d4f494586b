package llm

import (
	"errors"
	"fmt"
)

// Kind classifies provider failures.
type Kind string

const (
	KindQuota    Kind = "quota"
	KindTooShort Kind = "too_short"
	KindNotFound Kind = "not_found"
	KindOther    Kind = "other"
)

var (
	// ErrCredentialsExhausted is returned when every LLM credential was
	// rejected for quota within one call.
	ErrCredentialsExhausted = errors.New("llm: all credentials exhausted")

	// ErrCacheExpired is returned when the session cache is gone and there is
	// no backup context to rebuild it from.
	ErrCacheExpired = errors.New("llm: session cache expired")

	// ErrNoOutput is returned when the provider produced no usable text,
	// including blocked prompts.
	ErrNoOutput = errors.New("llm: no output")
)

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first ProviderError in err's chain, or
// KindOther.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// IsQuota reports whether err is a quota or rate-limit rejection.
func IsQuota(err error) bool {
	return err != nil && KindOf(err) == KindQuota
}
