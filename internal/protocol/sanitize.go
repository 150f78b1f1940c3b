package protocol

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Grammar limits, counted in characters.
const (
	MaxNicknameLength = 30
	MaxRoomNameLength = 50
	MaxMessageLength  = 500
)

var (
	nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9\s\-_.\[\]()]+$`)
	roomNamePattern = regexp.MustCompile(`^[#A-Za-z0-9\s\-_.]+$`)

	markupEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
)

// ValidationError is a rejected nickname, room name or message. Its text is
// sent to the client verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "Error: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Decode turns raw bytes from the wire into a string, dropping invalid UTF-8
// sequences and the line terminator.
func Decode(raw []byte) string {
	line := strings.ToValidUTF8(string(raw), "")
	return strings.TrimRight(line, "\r\n")
}

// StripControl removes control characters other than newline and tab.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Clean strips control characters and surrounding whitespace without
// escaping markup. Command words and arguments are matched against it.
func Clean(s string) string {
	return strings.TrimSpace(StripControl(s))
}

// Escape replaces markup characters with their HTML entities.
func Escape(s string) string {
	return markupEscaper.Replace(s)
}

// Sanitize applies the full treatment for anything stored or echoed.
func Sanitize(s string) string {
	return strings.TrimSpace(Escape(StripControl(s)))
}

// ValidateNickname checks a /connect argument and returns the sanitized name.
func ValidateNickname(raw string) (string, error) {
	nickname := Clean(raw)
	if nickname == "" {
		return "", invalid("/connect requires a nickname")
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return "", invalid("Nickname too long (max %d characters)", MaxNicknameLength)
	}
	if !nicknamePattern.MatchString(nickname) {
		return "", invalid("Nickname contains invalid characters")
	}
	return Sanitize(nickname), nil
}

// ValidateRoomName checks a /room argument and returns the sanitized name.
func ValidateRoomName(raw string) (string, error) {
	room := Clean(raw)
	if room == "" {
		return "", invalid("/room requires a room name")
	}
	if utf8.RuneCountInString(room) > MaxRoomNameLength {
		return "", invalid("Room name too long (max %d characters)", MaxRoomNameLength)
	}
	if !roomNamePattern.MatchString(room) {
		return "", invalid("Room name contains invalid characters")
	}
	return Sanitize(room), nil
}

// ValidateLineLength rejects lines longer than limit characters.
func ValidateLineLength(line string, limit int) error {
	if utf8.RuneCountInString(line) > limit {
		return LineTooLong(limit)
	}
	return nil
}

// LineTooLong is the rejection for any line over limit characters, including
// lines the transport discarded unread.
func LineTooLong(limit int) error {
	return invalid("Message too long (max %d characters)", limit)
}
