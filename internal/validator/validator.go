package validator

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidPackageID = errors.New("invalid package id")
	ErrInvalidOrderID   = errors.New("invalid order id")
	ErrInvalidPaymentID = errors.New("invalid payment id")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyInput       = errors.New("input is required")
	ErrInputTooLong     = errors.New("input is too long")
)

const (
	MaxLimit       = 500
	MaxInputLength = 20000
)

var (
	packageIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)
	gatewayIDRegex = regexp.MustCompile(`^[A-Za-z0-9_]{6,64}$`)
	signatureRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func ValidatePackageID(packageID string) error {
	if !packageIDRegex.MatchString(packageID) {
		return ErrInvalidPackageID
	}
	return nil
}

func ValidateOrderID(orderID string) error {
	if !gatewayIDRegex.MatchString(orderID) {
		return ErrInvalidOrderID
	}
	return nil
}

func ValidatePaymentID(paymentID string) error {
	if !gatewayIDRegex.MatchString(paymentID) {
		return ErrInvalidPaymentID
	}
	return nil
}

// ValidateSignature accepts a lowercase hex SHA-256 digest.
func ValidateSignature(signature string) error {
	if !signatureRegex.MatchString(signature) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseLimit returns fallback for an empty value.
func ParseLimit(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > MaxLimit {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}

func ParseAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount < 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

func ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}
	if utf8.RuneCountInString(input) > MaxInputLength {
		return ErrInputTooLong
	}
	return nil
}
