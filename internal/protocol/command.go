package protocol

import (
	"strings"
	"unicode"
)

// Kind identifies what a single inbound line asks the server to do.
type Kind int

// Every line parses to exactly one of these kinds.
const (
	KindChat Kind = iota
	KindConnect
	KindRoom
	KindWho
	KindHelp
	KindBye
	KindUnknown
)

var kindNames = map[Kind]string{
	KindChat:    "chat",
	KindConnect: "connect",
	KindRoom:    "room",
	KindWho:     "who",
	KindHelp:    "help",
	KindBye:     "bye",
	KindUnknown: "unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

var commandKinds = map[string]Kind{
	"/connect": KindConnect,
	"/room":    KindRoom,
	"/who":     KindWho,
	"/help":    KindHelp,
	"/bye":     KindBye,
}

// Command is a parsed inbound line.
//
// Arg holds the trimmed argument for /connect and /room, the message body for
// chat lines, and the unrecognized token for unknown commands.
type Command struct {
	Kind Kind
	Arg  string
}

// Parse classifies a cleaned line. Lines starting with "/" are commands keyed
// on their first whitespace-delimited word; everything else is chat.
func Parse(line string) Command {
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: KindChat, Arg: line}
	}

	name, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		name, rest = line[:i], strings.TrimSpace(line[i:])
	}

	kind, ok := commandKinds[name]
	if !ok {
		return Command{Kind: KindUnknown, Arg: name}
	}
	return Command{Kind: kind, Arg: rest}
}
