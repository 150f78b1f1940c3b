package server

import "math/rand"

// avatars is the fixed palette of decorative, non-emoji symbols.
var avatars = []string{
	"♠", "♣", "♥", "♦", "♪", "♫", "♯", "♭", "†", "‡", "§", "¶", "©", "®", "™",
	"←", "→", "↑", "↓", "↔", "↕", "↖", "↗", "↘", "↙", "∞", "∆", "∇", "∑", "∏",
	"√", "∴", "∵", "∀", "∃", "∈", "∋", "⊂", "⊃", "⊆", "⊇", "⊕", "⊗", "⊙", "⊥",
	"☐", "☑", "☒", "☓", "☆", "★", "☽", "☾", "⚡", "⚐", "⚑", "⚒", "⚓", "⚔", "⚖",
}

// avatarAt maps any draw onto the palette.
func avatarAt(draw int) string {
	i := draw % len(avatars)
	if i < 0 {
		i += len(avatars)
	}
	return avatars[i]
}

func randomAvatar() string {
	return avatarAt(rand.Intn(len(avatars)))
}
