// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Pipeline stage errors
	ErrCodePromptBuilding   ErrorCode = "PROMPT_BUILD_FAILED"
	ErrCodeSQLGeneration    ErrorCode = "SQL_GENERATION_FAILED"
	ErrCodeSQLValidation    ErrorCode = "SQL_VALIDATION_FAILED"
	ErrCodeSQLExecution     ErrorCode = "SQL_EXECUTION_FAILED"
	ErrCodeAnswerFormatting ErrorCode = "ANSWER_FORMATTING_FAILED"

	// LLM transport errors
	ErrCodeLLMRateLimited ErrorCode = "LLM_RATE_LIMITED"
	ErrCodeLLMConnection  ErrorCode = "LLM_CONNECTION_FAILED"
	ErrCodeLLMService     ErrorCode = "LLM_SERVICE_ERROR"

	// Vocabulary errors
	ErrCodeVocabularyLoad  ErrorCode = "VOCABULARY_LOAD_FAILED"
	ErrCodeAliasCollision  ErrorCode = "VOCABULARY_ALIAS_COLLISION"
	ErrCodeTermNotResolved ErrorCode = "TERM_NOT_RESOLVED"

	// Database errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY_FAILED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeSessionCreation    ErrorCode = "SESSION_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInsufficientPerms  ErrorCode = "INSUFFICIENT_PERMISSIONS"
	ErrCodeBudgetExceeded     ErrorCode = "COST_BUDGET_EXCEEDED"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	Suggestion    string                 `json:"suggestion,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Common error constructors with pre-configured messages

// NewSQLValidationError creates an error for safety rejections of generated SQL.
// The rejection category goes into the message; the matched text never does.
func NewSQLValidationError(category, message string) *EnhancedError {
	return New(ErrCodeSQLValidation, "Generated query did not pass safety checks").
		WithDetails(message).
		WithSuggestion("Please try a different question. Only read-only analytics over the sales data are supported.").
		WithMetadata("rejection_kind", category)
}

// NewSQLExecutionError creates an error for execution failures of an approved query
func NewSQLExecutionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeSQLExecution, "Couldn't retrieve the data").
		WithDetails("The query might be invalid or the data might not exist").
		WithSuggestion("Try asking the question differently, or narrow it to a specific period, product or state.")
}

// NewVocabularyLoadError creates an error for vocabulary document load failures
func NewVocabularyLoadError(err error, path string) *EnhancedError {
	return Wrap(err, ErrCodeVocabularyLoad, "Failed to load vocabulary document").
		WithDetails(fmt.Sprintf("Could not load the semantic vocabulary from: %s", path)).
		WithSuggestion("Verify the vocabulary file exists and is valid JSON.")
}

// NewAliasCollisionError creates an error for conflicting vocabulary aliases
func NewAliasCollisionError(alias, first, second string) *EnhancedError {
	return New(ErrCodeAliasCollision, "Vocabulary alias maps to more than one entry").
		WithDetails(fmt.Sprintf("Alias %q is registered for both %q and %q", alias, first, second)).
		WithSuggestion("Fix the vocabulary document so every alias maps to exactly one canonical entry.")
}

// NewBudgetExceededError creates an error for exhausted cost budgets
func NewBudgetExceededError(userID string, period string) *EnhancedError {
	return New(ErrCodeBudgetExceeded, "Cost budget exceeded").
		WithDetails(fmt.Sprintf("The %s AI cost budget for this account has been used up", period)).
		WithSuggestion("Wait for the budget window to reset, or ask an administrator to raise the limit.").
		WithMetadata("user_id", userID)
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *EnhancedError {
	return New(ErrCodeInvalidCredentials, "Invalid username or password").
		WithDetails("Authentication failed with the provided credentials").
		WithSuggestion("Please check your username and password and try again.")
}

// NewTokenCreationError creates an error for token creation failures
func NewTokenCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTokenCreation, "Failed to create authentication token").
		WithSuggestion("This is an internal server error. Please try logging in again.").
		WithMetadata("retryable", true)
}

// NewSessionCreationError creates an error for session creation failures
func NewSessionCreationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeSessionCreation, "Failed to create session").
		WithSuggestion("This is an internal server error. Please try logging in again.").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Log in via /api/v1/auth/login, or include a valid API key in the 'X-API-Key' header.")
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the analytics database").
		WithSuggestion("The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for database query failures
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}
