package store

import "errors"

var (
	// ErrKeyNotFound is an error indicating a given key does not exist
	ErrKeyNotFound = errors.New("not found")
	// ErrResourceNotFound is an error indicating a given resource does not exist
	ErrResourceNotFound = errors.New("resource not found")
	// ErrUnknownCommand is returned by the command handler for unsupported commands
	ErrUnknownCommand = errors.New("unknown command")
)

const (
	// Permissions to use on the db file. This is only used if the
	// database file does not exist and needs to be created.
	dbFileMode = 0600
)
