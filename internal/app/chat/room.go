/*
Package chat contains the real-time messaging core: connection admission,
presence tracking, room-scoped routing, and the message delivery-status pipeline.

This file defines the Room type, the multicast target for event fan-out. There
are exactly two kinds of room: the shared hub room holding every connected
operator, and one spoke room per end user holding at most that user's single
connection. A connection is assigned to exactly one room at admission and never
moves.
*/
package chat

import "fmt"

// Room identifies a multicast group. The tagged representation (rather than
// raw strings) keeps room handling exhaustive in the routing code; the string
// form exists only at the logging boundary.
type Room struct {
	spokeUserID string
	hub         bool
}

// HubRoom returns the room all hub operator connections share.
func HubRoom() Room {
	return Room{hub: true}
}

// SpokeRoom returns the room holding the given spoke user's connection.
func SpokeRoom(userID string) Room {
	return Room{spokeUserID: userID}
}

// IsHub reports whether this is the shared hub room.
func (r Room) IsHub() bool {
	return r.hub
}

// SpokeUserID returns the owning spoke user id; empty for the hub room.
func (r Room) SpokeUserID() string {
	return r.spokeUserID
}

// String renders the conventional room name for logs and diagnostics.
func (r Room) String() string {
	if r.hub {
		return "hub-room"
	}
	return fmt.Sprintf("spoke-room:%s", r.spokeUserID)
}
