package domain

import "errors"

var (
	ErrClientInput        = errors.New("invalid client input")
	ErrAuthMissing        = errors.New("api key not configured")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrGenerationTimeout  = errors.New("generation timed out")
	ErrNotFound           = errors.New("not found")
)
