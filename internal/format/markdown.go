package format

import (
	"regexp"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

var (
	headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)$`)
	spanRe   = regexp.MustCompile("\\*\\*(.+?)\\*\\*|~~(.+?)~~|`([^`]+?)`")
)

// UTF16Len calculates the UTF-16 length of a string.
// Telegram measures entity offsets and lengths in UTF-16 code units.
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2 // Non-BMP characters (surrogate pairs)
			} else {
				length++
			}
		}
	}
	return length
}

// ParseMarkdown converts the small markdown dialect used in agenda messages
// into Telegram entities:
//   - **bold** and "# Header" lines -> bold
//   - ~~done~~ -> strikethrough (completed tasks)
//   - `code` -> code
func ParseMarkdown(text string) ParseResult {
	text = headerRe.ReplaceAllString(text, "**$1**")

	var (
		entities []tgbotapi.MessageEntity
		out      strings.Builder
		offset   int
	)
	rest := text
	for {
		loc := spanRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			break
		}

		before := rest[:loc[0]]
		out.WriteString(before)
		offset += UTF16Len(before)

		var kind, inner string
		switch {
		case loc[2] != -1:
			kind, inner = "bold", rest[loc[2]:loc[3]]
		case loc[4] != -1:
			kind, inner = "strikethrough", rest[loc[4]:loc[5]]
		default:
			kind, inner = "code", rest[loc[6]:loc[7]]
		}

		n := UTF16Len(inner)
		entities = append(entities, tgbotapi.MessageEntity{Type: kind, Offset: offset, Length: n})
		out.WriteString(inner)
		offset += n
		rest = rest[loc[1]:]
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Offset < entities[j].Offset
	})

	return ParseResult{
		Text:     strings.TrimRight(out.String(), " \n"),
		Entities: entities,
	}
}

// Escape removes the markers ParseMarkdown understands from user text so a
// task like "**urgent**" renders literally.
func Escape(s string) string {
	r := strings.NewReplacer("**", "", "~~", "", "`", "'")
	return r.Replace(s)
}
