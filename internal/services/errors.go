package services

import "errors"

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientTokens = errors.New("insufficient tokens")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPackage     = errors.New("invalid package")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrSignatureMismatch  = errors.New("payment signature mismatch")
	ErrGenerationFailed   = errors.New("generation failed")
)
