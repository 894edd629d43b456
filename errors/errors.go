package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrRecipientOffline = fmt.Errorf("recipient offline")
	ErrNotInRoom        = fmt.Errorf("not in a room")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrNotAMember       = fmt.Errorf("not a member of the room")
	ErrTransportFailure = fmt.Errorf("transport failure")
	ErrUnknownEventType = fmt.Errorf("unknown event type")
	ErrInvalidToken     = fmt.Errorf("invalid token")
)
