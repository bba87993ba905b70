package guard

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rbright/olivia/internal/llm"
)

var bannedStarts = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^it sounds like\b`),
	regexp.MustCompile(`(?i)^that sounds like\b`),
	regexp.MustCompile(`(?i)^it seems like\b`),
	regexp.MustCompile(`(?i)^that seems like\b`),
	regexp.MustCompile(`(?i)^it must be\b`),
	regexp.MustCompile(`(?i)^that must be\b`),
	regexp.MustCompile(`(?i)^it appears that\b`),
}

// FilterLeadingParrot strips the first matching restatement opener and recapitalizes the rest.
func FilterLeadingParrot(response string) string {
	text := strings.TrimSpace(response)

	for _, pattern := range bannedStarts {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		text = strings.TrimLeft(strings.TrimSpace(text[loc[1]:]), " ,;:-")
		return capitalizeFirst(text)
	}
	return text
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if size == 0 {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

type filtered struct {
	next Generator
}

// Filtered wraps a generator so every raw completion passes FilterLeadingParrot first.
func Filtered(next Generator) Generator {
	return filtered{next: next}
}

func (f filtered) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	resp, err := f.next.Generate(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.Text = FilterLeadingParrot(resp.Text)
	return resp, nil
}
