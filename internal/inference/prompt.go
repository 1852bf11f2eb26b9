package inference

import (
	"fmt"

	"github.com/eldtechnologies/chatmood/internal/parser"
)

// BuildPrompt wraps a chat message in the instruction asking for the four
// labelled lines read back by parser.LinePrefixParser.
func BuildPrompt(text string) string {
	return fmt.Sprintf("[INST] You are a sentiment analyst. Respond in exactly four lines:\n"+
		"%s sentiment\n"+
		"%s basis on which the sentiment was derived\n"+
		"%s emotions\n"+
		"%s level of urgency\n"+
		"[/INST] Analyze this message: %s",
		parser.LabelSentiment, parser.LabelJustification, parser.LabelEmotions, parser.LabelUrgency, text)
}
