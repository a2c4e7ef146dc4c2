package services

import "errors"

// Validation errors: rejected before any mutation.
var (
	ErrInvalidAmount     = errors.New("amount must be a positive integer")
	ErrInvalidTimeOfDay  = errors.New("time of day must be HH:MM")
	ErrInvalidWindow     = errors.New("access window start and end must differ")
	ErrInvalidEventType  = errors.New("invalid event type")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidThreshold  = errors.New("bonus threshold must be at least 1")
	ErrInvalidSetting    = errors.New("setting values must be non-negative")
	ErrInvalidCard       = errors.New("card_uid is required")
	ErrInvalidIndividual = errors.New("name, card_uid and role are required")
	ErrInvalidTxType     = errors.New("invalid transaction type")
)

// Business-rule violations.
var (
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrIndividualInactive  = errors.New("individual is not active")
	ErrBonusAlreadyAwarded = errors.New("monthly bonus already awarded")
	ErrNotEntryEvent       = errors.New("access event is not an entry")
	ErrDuplicateCard       = errors.New("card_uid already registered")
)

// Lookup failures.
var (
	ErrIndividualNotFound = errors.New("individual not found")
	ErrEventNotFound      = errors.New("access event not found")
	ErrBackupNotFound     = errors.New("backup not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)
