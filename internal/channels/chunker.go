package channels

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Per-platform text limits in bytes.
const (
	MaxWhatsAppText = 4096
	MaxTelegramText = 4096
	MaxDiscordText  = 2000
)

// SplitText splits text into pieces of at most maxSize bytes. It breaks at
// the last paragraph break, newline, sentence end or space inside the window,
// and falls back to a hard break on a rune boundary.
func SplitText(text string, maxSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxSize <= 0 || len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxSize {
		idx := breakPoint(remaining, maxSize)
		if chunk := strings.TrimRightFunc(remaining[:idx], unicode.IsSpace); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[idx:], unicode.IsSpace)
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func breakPoint(text string, maxSize int) int {
	window := text[:maxSize]
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	best := -1
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); idx > best {
			best = idx
		}
	}
	if best > 0 {
		return best + 1
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	// Hard break on a rune boundary.
	idx := maxSize
	for idx > 0 && !utf8.RuneStart(text[idx]) {
		idx--
	}
	if idx == 0 {
		return maxSize
	}
	return idx
}
