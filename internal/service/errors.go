package service

import (
	"errors"
	"fmt"

	"storefront-api/internal/models"
)

// Kind classifies a service failure independently of any transport.
type Kind string

const (
	KindProductNotFound   Kind = "product_not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindOrderNotFound     Kind = "order_not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindInvalidInput      Kind = "invalid_input"
)

// Error is returned by every service operation that fails for a domain reason.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrProductNotFound   = &Error{Kind: KindProductNotFound, Message: "product not found"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrOrderNotFound     = &Error{Kind: KindOrderNotFound, Message: "order not found"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput, Message: "invalid input"}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func productNotFound(id int64) error {
	return &Error{Kind: KindProductNotFound, Message: fmt.Sprintf("Product with ID %d not found", id)}
}

func insufficientStock(name string, available int) error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("Insufficient stock for %s. Available: %d", name, available),
	}
}

func orderNotFound() error {
	return &Error{Kind: KindOrderNotFound, Message: "Order not found"}
}

func invalidTransition(msg string) error {
	return &Error{Kind: KindInvalidTransition, Message: msg}
}

func unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func invalidInput(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func requireAdmin(p models.Principal) error {
	if p.IsAdmin {
		return nil
	}
	return unauthorized("Admin access required")
}
