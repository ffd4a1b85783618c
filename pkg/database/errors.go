package database

import "errors"

var (
	ErrInvalidDatabasePath  = errors.New("invalid database path")
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrInvalidLimit         = errors.New("invalid limit")
)
