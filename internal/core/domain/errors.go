package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrConversationNotFound also covers a conversation owned by another user.
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTemporary            = errors.New("temporary failure")
	// ErrRetrieval marks a collaborator failure while fetching or ranking candidates.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrGeneration marks a language model failure while producing the answer.
	ErrGeneration = errors.New("generation failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
