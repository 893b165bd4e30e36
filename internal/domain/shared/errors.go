package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	// ErrNotFound is returned by the store when a record does not exist.
	// The committer treats a missing transaction as a benign no-op.
	ErrNotFound = NewDomainError("NOT_FOUND", "Record not found")

	// ErrAlreadyExists is returned when an insert-only put finds an existing record
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Record already exists")

	// ErrConcurrencyConflict is returned when a conditional write is rejected
	// because a record's version changed since it was read. Retryable: the
	// caller must redeliver the triggering event and recompute from scratch.
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Record was modified by another process")

	// ErrMissingDependency is returned when a record references another record
	// that must exist but does not. Fatal for the invocation; redelivery will
	// recur identically until the data is repaired.
	ErrMissingDependency = NewDomainError("MISSING_DEPENDENCY", "Referenced record does not exist")

	// ErrMalformedSequence is returned when a stored sequence cannot be parsed.
	// Non-retryable: it indicates corrupted prior state and must never be
	// silently defaulted.
	ErrMalformedSequence = NewDomainError("MALFORMED_SEQUENCE", "Stored sequence value cannot be parsed")

	// ErrInvalidInput is returned for invalid arguments to constructors
	ErrInvalidInput = NewDomainError("INVALID_INPUT", "Invalid input provided")
)
