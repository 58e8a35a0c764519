package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidRule            = errors.New("invalid rule")
	ErrInvalidTransition      = errors.New("invalid decision status transition")
	ErrUnknownAutomationLevel = errors.New("unknown automation level")
	ErrUnknownDecisionType    = errors.New("unknown decision type")
	ErrUnknownOperator        = errors.New("unknown condition operator")
	ErrAlreadyClaimed         = errors.New("decision already claimed for execution")
)
