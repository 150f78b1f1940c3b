// Package protocol holds the stateless half of the Tempest line protocol:
// command parsing, input validation and sanitization, and the exact text of
// every line the server writes.
package protocol

import (
	"fmt"
	"strings"
)

// Fixed server lines. The transport appends the trailing newline.
const (
	Greeting       = "Welcome to Tempest Server! Use /connect <name> to begin."
	ServerFull     = "Server full. Please try again later."
	Goodbye        = "GOODBYE"
	NoActiveRooms  = "No active rooms. Use /room <name> to create one."
	UnknownCommand = "Unknown command. Type /help for available commands."
	NotConnected   = "You must /connect first."
	WhoNeedsRoom   = "You must join a room first."
	ChatNeedsRoom  = "You must /room <name> first."
	RateLimited    = "Rate limit exceeded. Please slow down."
	NicknameTaken  = "Error: Nickname already in use"

	Help = "Available commands:\n" +
		"/connect <name> - Set your nickname and connect to the server\n" +
		"/room <name>    - Join or create a chat room\n" +
		"/who            - List users in your current room\n" +
		"/help           - Show this help message\n" +
		"/bye            - Disconnect from the server\n" +
		"\n" +
		"After connecting and joining a room, simply type messages to chat!"
)

// Member is how a session appears in listings: "[avatar] nickname".
func Member(avatar, nickname string) string {
	return fmt.Sprintf("[%s] %s", avatar, nickname)
}

// Welcome acknowledges a successful /connect.
func Welcome(nickname, avatar string) string {
	return fmt.Sprintf("WELCOME %s [%s]", nickname, avatar)
}

// Entered acknowledges a successful /room.
func Entered(room string) string {
	return "ENTERED " + room
}

// Joined announces a new room member.
func Joined(avatar, nickname string) string {
	return fmt.Sprintf("** %s has entered the room **", Member(avatar, nickname))
}

// Left announces a departing room member.
func Left(avatar, nickname string) string {
	return fmt.Sprintf("** %s has left the room **", Member(avatar, nickname))
}

// Chat formats one chat line as delivered and replayed.
func Chat(avatar, nickname, text string) string {
	return fmt.Sprintf("%s: %s", Member(avatar, nickname), text)
}

// Users answers /who.
func Users(members []string) string {
	return "USERS: " + strings.Join(members, ", ")
}

// RoomLimit rejects creating a room beyond the server cap.
func RoomLimit(max int) string {
	return fmt.Sprintf("Error: Server room limit reached (%d rooms)", max)
}

// RoomListing is one line of the /connect room overview.
type RoomListing struct {
	Name    string
	Members []string
}

// Rooms renders the room overview sent after WELCOME.
func Rooms(rooms []RoomListing) string {
	var b strings.Builder
	for _, room := range rooms {
		if len(room.Members) == 0 {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("ROOMS:")
		}
		fmt.Fprintf(&b, "\n  %s: %s", room.Name, strings.Join(room.Members, ", "))
	}
	if b.Len() == 0 {
		return NoActiveRooms
	}
	return b.String()
}
