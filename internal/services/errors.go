package services

import "errors"

var (
	// ErrEmbeddingUnavailable is returned by knowledge save/search when no
	// embedding provider is configured.
	ErrEmbeddingUnavailable = errors.New("embedding provider not configured")

	// ErrRunNotFound is returned when no team run exists for the conversation.
	ErrRunNotFound = errors.New("team run not found")

	// ErrSpecialistNotFound is returned when the named agent is not part of
	// the run's plan.
	ErrSpecialistNotFound = errors.New("specialist not found")

	// ErrSpecialistNotPaused is returned when an answer arrives for a
	// specialist that is not waiting on one.
	ErrSpecialistNotPaused = errors.New("specialist is not paused")
)
