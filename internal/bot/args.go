package bot

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

// parseCommand splits "!name rest of text" into the lowercased name and the
// raw remainder. ok is false when content does not start with prefix.
func parseCommand(content, prefix string) (name, rest string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	body := strings.TrimSpace(content[len(prefix):])
	if body == "" {
		return "", "", false
	}
	name, rest, _ = strings.Cut(body, " ")
	return strings.ToLower(name), strings.TrimSpace(rest), true
}

// mentionID returns the user id of a <@id> or <@!id> token.
func mentionID(token string) (string, bool) {
	m := mentionPattern.FindStringSubmatch(token)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// splitFirst returns the first whitespace separated token and the trimmed rest.
func splitFirst(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// splitTitle splits the arguments of the embed command. A title containing
// spaces must be wrapped in double quotes.
func splitTitle(s string) (title, rest string, ok bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		end := strings.Index(s[1:], `"`)
		if end < 0 {
			return "", "", false
		}
		title = s[1 : end+1]
		rest = strings.TrimSpace(s[end+2:])
	} else {
		title, rest = splitFirst(s)
	}
	if title == "" || rest == "" {
		return "", "", false
	}
	return title, rest, true
}
