package service

import "errors"

// Sentinel errors surfaced to handlers, which translate them to protocol
// status codes.
var (
	// ErrSubmissionNotFound indicates no active submission matches the lookup.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAnswerTooLarge indicates the serialized answer exceeds the size bound.
	ErrAnswerTooLarge = errors.New("answer payload exceeds maximum size")
	// ErrQueueEmpty indicates no eligible record exists for the queue. Not a
	// failure: an empty queue is an expected steady state.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrQueueConflict indicates the record's row lock is held by a concurrent
	// claim or result post. Callers are expected to retry.
	ErrQueueConflict = errors.New("submission already in process")
	// ErrIncorrectKey indicates a result post carried a pull credential that
	// does not match the record's pull key.
	ErrIncorrectKey = errors.New("incorrect key for submission")
	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = errors.New("incorrect login credentials")
)
