package flow

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent is the classified meaning of an inbound text.
type Intent int

const (
	IntentUnrecognized Intent = iota
	IntentHelp
	IntentAddHabit
	IntentSetReminder
	IntentComplete
	IntentLater
	IntentProgress
	IntentList
)

func (i Intent) String() string {
	switch i {
	case IntentHelp:
		return "help"
	case IntentAddHabit:
		return "add_habit"
	case IntentSetReminder:
		return "set_reminder"
	case IntentComplete:
		return "complete"
	case IntentLater:
		return "later"
	case IntentProgress:
		return "progress"
	case IntentList:
		return "list"
	default:
		return "unrecognized"
	}
}

// Command is a classified text with its argument.
type Command struct {
	Intent Intent
	// Arg is the habit title for IntentAddHabit and the raw text for IntentSetReminder.
	Arg string
}

var (
	addPrefix     = regexp.MustCompile(`^(?:習慣[\s\x{3000}]*追加|(?i:habit\s+add))`)
	remindPrefix  = regexp.MustCompile(`^(?:リマインド|(?i:remind))`)
	bareTimeRegex = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	exactKeywords = map[string]Intent{
		"開始":       IntentHelp,
		"help":     IntentHelp,
		"ヘルプ":      IntentHelp,
		"やった":      IntentComplete,
		"done":     IntentComplete,
		"あとで":      IntentLater,
		"later":    IntentLater,
		"進捗":       IntentProgress,
		"progress": IntentProgress,
		"一覧":       IntentList,
		"list":     IntentList,
	}
)

// Classify maps trimmed message text to exactly one Command. ASCII command
// words match case-insensitively; Japanese vocabulary and titles match exactly.
func Classify(text string) Command {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	if intent, ok := exactKeywords[lower]; ok && intent == IntentHelp {
		return Command{Intent: IntentHelp}
	}
	if loc := addPrefix.FindStringIndex(text); loc != nil {
		return Command{Intent: IntentAddHabit, Arg: habitTitle(text[loc[1]:])}
	}
	if remindPrefix.MatchString(text) || bareTimeRegex.MatchString(text) {
		return Command{Intent: IntentSetReminder, Arg: text}
	}
	if intent, ok := exactKeywords[lower]; ok {
		return Command{Intent: intent}
	}
	return Command{Intent: IntentUnrecognized}
}

// habitTitle returns the title after the add prefix. The title must be
// separated from the prefix by whitespace; otherwise it is treated as missing.
func habitTitle(rest string) string {
	if rest == "" {
		return ""
	}
	if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(r) {
		return ""
	}
	return strings.TrimSpace(rest)
}
