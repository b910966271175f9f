package room

import "errors"

var (
	// ErrRoomNotFound means the room code does not resolve to a live session
	// (expired or garbage-collected). Clients must abandon their cached state
	// and restart the join flow.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomClosed means the room's worker has shut down while the call was
	// in flight. Equivalent to ErrRoomNotFound for clients.
	ErrRoomClosed = errors.New("room closed")

	// ErrRoomFull is returned when a new identity tries to join a room at
	// capacity.
	ErrRoomFull = errors.New("room is full")

	// ErrInvalidState is returned for operations that are not legal in the
	// session's current status, e.g. answers after the session ended.
	ErrInvalidState = errors.New("invalid session state")

	// ErrPlayerNotFound is returned when an identity is not part of the
	// session.
	ErrPlayerNotFound = errors.New("player not in room")

	// ErrNotHost is returned when a non-host player tries a host-only
	// operation.
	ErrNotHost = errors.New("only the host may do that")

	// ErrRoomNotFull is returned when the host starts the game before the
	// room is full.
	ErrRoomNotFull = errors.New("room is not full yet")
)
