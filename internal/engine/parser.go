package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// IntentKind is the classification of a message.
type IntentKind int

const (
	IntentChat IntentKind = iota
	IntentTool
	IntentRefine
	IntentCancel
)

func (k IntentKind) String() string {
	switch k {
	case IntentTool:
		return "tool"
	case IntentRefine:
		return "refine"
	case IntentCancel:
		return "cancel"
	default:
		return "chat"
	}
}

// Intent is a parsed oracle reply.
type Intent struct {
	Kind IntentKind
	Tool string
	// Args are the extracted arguments of a TOOL reply.
	Args map[string]string
	// Missing and Question come from a REFINE reply.
	Missing  []string
	Question string
}

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	labelPattern = regexp.MustCompile(`(?i)^(run tool|action)\s*:\s*`)
)

// ParseIntent parses a reply in the grammar
//
//	CHAT | CANCEL | TOOL:name[|k=v&k=v] | REFINE:name|k1,k2[|question]
//
// Only the first non-empty line counts and keywords are case-insensitive.
// Code fences, quotes and a leading "Run tool:" or "Action:" label are
// stripped. Anything else yields a chat intent and ErrClassificationAmbiguous.
func ParseIntent(reply string) (Intent, error) {
	line := firstLine(reply)
	if line == "" {
		return chatIntent(), fmt.Errorf("%w: empty reply", ErrClassificationAmbiguous)
	}

	keyword, rest, hasColon := strings.Cut(line, ":")
	switch strings.ToUpper(strings.TrimRight(strings.TrimSpace(keyword), ".!")) {
	case "CHAT":
		if hasColon {
			break
		}
		return chatIntent(), nil
	case "CANCEL":
		if hasColon {
			break
		}
		return Intent{Kind: IntentCancel}, nil
	case "TOOL":
		if !hasColon {
			break
		}
		if intent, ok := parseTool(rest); ok {
			return intent, nil
		}
	case "REFINE":
		if !hasColon {
			break
		}
		if intent, ok := parseRefine(rest); ok {
			return intent, nil
		}
	}
	return chatIntent(), fmt.Errorf("%w: %q", ErrClassificationAmbiguous, truncate(line, 80))
}

func chatIntent() Intent {
	return Intent{Kind: IntentChat}
}

func parseTool(rest string) (Intent, bool) {
	name, params, _ := strings.Cut(rest, "|")
	name, ok := parseName(name)
	if !ok {
		return Intent{}, false
	}
	args := map[string]string{}
	params = strings.TrimSpace(params)
	if params != "" {
		for _, pair := range strings.Split(params, "&") {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			key, value, found := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !found || !namePattern.MatchString(key) {
				return Intent{}, false
			}
			args[key] = decodeValue(value)
		}
	}
	return Intent{Kind: IntentTool, Tool: name, Args: args}, true
}

func parseRefine(rest string) (Intent, bool) {
	parts := strings.SplitN(rest, "|", 3)
	if len(parts) < 2 {
		return Intent{}, false
	}
	name, ok := parseName(parts[0])
	if !ok {
		return Intent{}, false
	}
	var missing []string
	for _, key := range strings.Split(parts[1], ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !namePattern.MatchString(key) {
			return Intent{}, false
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return Intent{}, false
	}
	intent := Intent{Kind: IntentRefine, Tool: name, Missing: missing}
	if len(parts) == 3 {
		intent.Question = strings.TrimSpace(parts[2])
	}
	return intent, true
}

func parseName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !namePattern.MatchString(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

func decodeValue(v string) string {
	v = strings.TrimSpace(v)
	if decoded, err := url.PathUnescape(v); err == nil {
		return strings.TrimSpace(decoded)
	}
	return v
}

// firstLine returns the first significant line with decorations removed.
func firstLine(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.Trim(line, "`\"'")
		line = labelPattern.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), "`\"'")
		if line != "" {
			return line
		}
	}
	return ""
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
