package core

import "errors"

var (
	ErrBatchNotFound       = errors.New("batch not found")
	ErrUnknownGuide        = errors.New("unknown guide")
	ErrInvalidPeriod       = errors.New("invalid period")
	ErrGuideNotPlanned     = errors.New("guide not planned for batch")
	ErrBatchFailed         = errors.New("batch failed")
	ErrBatchNotCompleted   = errors.New("batch generation not completed")
	ErrNoArtifacts         = errors.New("batch has no artifacts")
	ErrBlockersPresent     = errors.New("batch has blocking validation issues")
	ErrWarningsUnconfirmed = errors.New("batch has validation warnings that were not confirmed")

	// ErrTooManyGenerations is returned when every generation slot stays
	// occupied for the limiter's wait time. Callers retry later.
	ErrTooManyGenerations = errors.New("too many generations in progress, please try again later")
)
