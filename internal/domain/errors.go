package domain

import "errors"

var (
	// ErrDeckNotFound indicates the deck content could not be loaded.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrDeckEmpty indicates a deck with no questions was supplied.
	ErrDeckEmpty = errors.New("deck has no questions")
)
