package domain

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomExists          = errors.New("room already exists")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPeerNotFound        = errors.New("peer not found")
	ErrHostAlreadyPresent  = errors.New("room already has an active host")
	ErrSessionClosed       = errors.New("signaling session is closed")
	ErrTrackNotFound       = errors.New("track not found")
	ErrNotConnected        = errors.New("peer is not connected")
	ErrIDAllocation        = errors.New("failed to allocate a unique id")
	ErrRoomLimit           = errors.New("room limit reached")
	ErrViewerLimit         = errors.New("viewer limit reached for room")
)
