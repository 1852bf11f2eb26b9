// Package parser extracts classification fields from free-text model replies.
package parser

import (
	"fmt"
	"strings"

	"github.com/eldtechnologies/chatmood/internal/models"
)

// Line labels the model is asked to answer with.
const (
	LabelSentiment     = "SENTIMENT:"
	LabelJustification = "JUSTIFICATION:"
	LabelEmotions      = "EMOTIONS:"
	LabelUrgency       = "URGENCY:"
)

// Parser turns a raw model reply into a Classification.
type Parser interface {
	Parse(raw string) (*models.Classification, error)
}

// IncompleteClassificationError is returned when one or more labels are
// missing or empty after scanning the whole reply.
type IncompleteClassificationError struct {
	Missing []string
}

func (e *IncompleteClassificationError) Error() string {
	return fmt.Sprintf("incomplete classification: missing %s", strings.Join(e.Missing, ", "))
}

// LinePrefixParser matches each line against the fixed labels, case-sensitive
// at line start. When a label repeats, the last line wins.
type LinePrefixParser struct{}

// NewLinePrefixParser creates a LinePrefixParser.
func NewLinePrefixParser() *LinePrefixParser {
	return &LinePrefixParser{}
}

// Parse implements Parser.
func (p *LinePrefixParser) Parse(raw string) (*models.Classification, error) {
	c := &models.Classification{}
	fields := []struct {
		label string
		dst   *string
	}{
		{LabelSentiment, &c.Sentiment},
		{LabelJustification, &c.Justification},
		{LabelEmotions, &c.Emotion},
		{LabelUrgency, &c.Urgency},
	}

	for _, line := range strings.FieldsFunc(raw, isLineBreak) {
		for _, f := range fields {
			if value, ok := strings.CutPrefix(line, f.label); ok {
				*f.dst = strings.TrimSpace(value)
				break
			}
		}
	}

	var missing []string
	for _, f := range fields {
		if *f.dst == "" {
			missing = append(missing, strings.TrimSuffix(f.label, ":"))
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteClassificationError{Missing: missing}
	}
	return c, nil
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}
