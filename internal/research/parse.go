package research

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CommandKind is the variant of a decoded Command.
type CommandKind int

const (
	CommandUnrecognized CommandKind = iota // not decodable, or a search/read without its argument
	CommandSearch
	CommandRead
	CommandDone
	CommandUnknown // well-formed, but the action is not one we know
)

func (k CommandKind) String() string {
	switch k {
	case CommandSearch:
		return "search"
	case CommandRead:
		return "read"
	case CommandDone:
		return "done"
	case CommandUnknown:
		return "unknown"
	default:
		return "unrecognized"
	}
}

// Command is one instruction decoded from model text. Only ParseCommand
// produces these.
type Command struct {
	Kind    CommandKind
	Query   string // search
	URL     string // read
	Summary string // done
	Action  string // the action name as given, lowercased
	Raw     string // the text that was parsed
}

// ParseCommand decodes model output. It is pure and never fails: anything
// that cannot be decoded is CommandUnrecognized.
func ParseCommand(text string) Command {
	stripped := StripFences(text)

	cmd, ok := decodeAction(stripped)
	if !ok {
		cmd, ok = scanActionObject(stripped)
	}
	if !ok {
		cmd = Command{Kind: CommandUnrecognized}
	}
	cmd.Raw = text
	return cmd
}

var fenceMarker = regexp.MustCompile("```[A-Za-z0-9_-]*")

// StripFences removes markdown code fence markers, keeping their contents.
func StripFences(text string) string {
	return strings.TrimSpace(fenceMarker.ReplaceAllString(text, ""))
}

// decodeAction parses the whole of s as a JSON object with an "action" field.
func decodeAction(s string) (Command, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return Command{}, false
	}
	raw, ok := fields["action"]
	if !ok {
		return Command{}, false
	}
	var action string
	if err := json.Unmarshal(raw, &action); err != nil {
		return Command{}, false
	}

	action = strings.ToLower(strings.TrimSpace(action))
	cmd := Command{Action: action}
	switch action {
	case "search":
		cmd.Query = stringField(fields, "query")
		if cmd.Query == "" {
			return Command{}, false
		}
		cmd.Kind = CommandSearch
	case "read":
		cmd.URL = stringField(fields, "url")
		if cmd.URL == "" {
			return Command{}, false
		}
		cmd.Kind = CommandRead
	case "done":
		cmd.Summary = stringField(fields, "summary")
		cmd.Kind = CommandDone
	case "":
		return Command{}, false
	default:
		cmd.Kind = CommandUnknown
	}
	return cmd, true
}

// stringField returns a trimmed string field. Non-string values are kept as
// their JSON text so a structured summary is not lost.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(raw) == "null" {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

var actionKey = regexp.MustCompile(`"action"\s*:`)

// scanActionObject recovers an object embedded in prose. For each "action"
// key it tries every '{' before it, nearest first, cutting a brace-balanced
// object from there.
func scanActionObject(s string) (Command, bool) {
	for _, loc := range actionKey.FindAllStringIndex(s, -1) {
		for open := strings.LastIndexByte(s[:loc[0]], '{'); open >= 0; open = strings.LastIndexByte(s[:open], '{') {
			obj, ok := BalancedObject(s[open:])
			if !ok || len(obj) <= loc[0]-open {
				continue
			}
			if cmd, ok := decodeAction(obj); ok {
				return cmd, true
			}
		}
	}
	return Command{}, false
}

// BalancedObject returns the prefix of s (which starts with '{') up to the
// matching '}', honoring JSON strings and escapes.
func BalancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
