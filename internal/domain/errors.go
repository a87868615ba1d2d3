package domain

import "errors"

// Базовые ошибки предметной области. Хендлеры маппят их в HTTP-коды.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyProcessed   = errors.New("request already processed")
)

// Error — ошибка с сообщением для клиента. Kind — один из сентинелов выше,
// по нему хендлер выбирает HTTP-код.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// E создает ошибку предметной области с текстом для клиента.
func E(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}
