package interview

import (
	"strings"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// HistoryWindow is the number of most recent turns sent with each interviewer call.
const HistoryWindow = 6

// FormatTranscript renders turns as "speaker: text" lines for grading.
// Code attached to a turn is not included.
func FormatTranscript(turns []domain.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

// ParseTranscript reverses FormatTranscript. A line that does not start with a
// speaker label continues the previous turn's text.
func ParseTranscript(text string) []domain.Turn {
	if text == "" {
		return nil
	}

	var turns []domain.Turn
	for line := range strings.SplitSeq(text, "\n") {
		if speaker, rest, ok := splitSpeaker(line); ok {
			turns = append(turns, domain.Turn{Speaker: speaker, Text: rest})
			continue
		}
		if len(turns) == 0 {
			turns = append(turns, domain.Turn{Text: line})
			continue
		}
		turns[len(turns)-1].Text += "\n" + line
	}
	return turns
}

func splitSpeaker(line string) (domain.Speaker, string, bool) {
	for _, s := range []domain.Speaker{domain.SpeakerInterviewer, domain.SpeakerUser} {
		if rest, ok := strings.CutPrefix(line, string(s)+": "); ok {
			return s, rest, true
		}
	}
	return "", "", false
}

// History renders the last n turns for the interviewer, code included.
func History(turns []domain.Turn, n int) string {
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		line := string(t.Speaker) + ": " + t.Text
		if t.HasCode() {
			line += "\nCODE:\n" + t.Code
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
