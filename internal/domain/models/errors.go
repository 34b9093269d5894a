package models

import "errors"

// Error kinds surfaced by the pricing core. Callers match them with errors.Is.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrProductNotFound = errors.New("product not found")
	ErrTestNotFound    = errors.New("test not found")
	ErrVariantNotFound = errors.New("variant not found")
)
