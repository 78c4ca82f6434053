package realtime

import "errors"

// Registry errors
var (
	// Admission errors

	ErrEmptyUserID       = errors.New("user id must not be empty")
	ErrEmptyRoomID       = errors.New("room id must not be empty")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrRoomFull          = errors.New("room capacity exceeded")

	// Lifecycle errors

	ErrManagerClosed = errors.New("manager is closed")

	// Queue errors

	ErrMessageEncoding = errors.New("message cannot be encoded")
)
