package services

import "errors"

var (
	ErrInvalidInput               = errors.New("invalid input")
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrUnauthorizedActor          = errors.New("actor is not a participant of this session")
	ErrConflictingOvertimeRequest = errors.New("an unresolved overtime request already exists")
	ErrGatewayCallFailed          = errors.New("payment gateway call failed")
	ErrRecordInconsistency        = errors.New("session records are inconsistent")
	ErrCoachNotFound              = errors.New("coach not found")
	ErrForbidden                  = errors.New("forbidden")
)
