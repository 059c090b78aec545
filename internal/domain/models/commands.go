package models

import "strings"

// CommandType enumerates supported kitchen chat commands.
type CommandType string

const (
	CommandIssue   CommandType = "issue"
	CommandCook    CommandType = "cook"
	CommandPreview CommandType = "preview"
	CommandStock   CommandType = "stock"
	CommandLow     CommandType = "low"
	CommandUnknown CommandType = "unknown"
)

// Command represents a parsed kitchen instruction extracted from chat text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// ParseCommand derives a Command instance from free-form text messages.
// Only the command word is case-folded; arguments such as descriptions keep
// the casing the sender typed.
func ParseCommand(message string) Command {
	tokens := strings.Fields(strings.TrimSpace(message))
	cmd := Command{Type: CommandUnknown, Raw: message}
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	switch CommandType(head) {
	case CommandIssue, CommandCook, CommandPreview, CommandStock, CommandLow:
		cmd.Type = CommandType(head)
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}
