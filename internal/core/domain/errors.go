package domain

import (
	"errors"
	"regexp"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAction      = errors.New("invalid action")
	ErrInvalidSeverity    = errors.New("invalid severity")
	ErrInvalidResource    = errors.New("invalid resource")
	ErrInvalidDetails     = errors.New("details must be a json object")
	ErrUnknownUser        = errors.New("unknown user")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

var identPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// ValidateAction checks an audit action name such as "auth.login".
func ValidateAction(action string) error {
	if action == "" || len(action) > 128 || !identPattern.MatchString(action) {
		return ErrInvalidAction
	}
	return nil
}

func ValidateResource(resourceType, resourceID string) error {
	if resourceType == "" && resourceID == "" {
		return nil
	}
	if resourceType == "" || !identPattern.MatchString(resourceType) {
		return ErrInvalidResource
	}
	if resourceID != "" && !identPattern.MatchString(resourceID) {
		return ErrInvalidResource
	}
	return nil
}
