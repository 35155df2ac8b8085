// Package quality validates the structure of generated reply text after it has
// been through the compliance guard.
package quality

import (
	"fmt"
	"strings"

	"reviewdesk/internal/compliance"
	"reviewdesk/internal/domain"
)

// Contract is the structure a reply must satisfy.
type Contract struct {
	ReviewerFirstName string
	BusinessName      string
	Signature         string
	MinWords          int
	MaxWords          int // 0 means no upper bound
	BannedPhrases     []string
	ReviewText        string
	BusinessEmail     string
	BusinessPhone     string
	ProcedureKeywords []string
}

type Result struct {
	OK            bool
	Issues        []string
	Blocked       bool
	Violations    []domain.Violation
	SanitizedText string
	WordCount     int
}

// FirstName returns the greeting name for an author, "Customer" when unknown.
func FirstName(author string) string {
	if f := strings.Fields(author); len(f) > 0 {
		return f[0]
	}
	return "Customer"
}

// Greeting is the exact opening every reply must have.
func Greeting(firstName string) string { return "Dear " + firstName + "," }

func (c Contract) policy() compliance.Policy {
	p := compliance.Policy{
		BannedPhrases:     c.BannedPhrases,
		ProcedureKeywords: c.ProcedureKeywords,
		Signature:         c.Signature,
		BusinessName:      c.BusinessName,
	}
	if c.BusinessEmail != "" {
		p.AllowedEmails = []string{c.BusinessEmail}
	}
	if c.BusinessPhone != "" {
		p.AllowedPhones = []string{c.BusinessPhone}
	}
	return p
}

// Check sanitizes the candidate and validates the sanitized text against c.
func Check(candidate string, c Contract) Result {
	g := compliance.Check(compliance.Input{
		Target:     domain.TargetReviewReply,
		Text:       candidate,
		ReviewText: c.ReviewText,
	}, c.policy())

	text := strings.TrimSpace(g.SanitizedText)
	lower := strings.ToLower(text)
	words := len(strings.Fields(text))

	var issues []string
	if greet := Greeting(c.ReviewerFirstName); !strings.HasPrefix(text, greet) {
		issues = append(issues, fmt.Sprintf("greeting: reply must start with %q", greet))
	}
	if strings.ContainsAny(text, "[]") {
		issues = append(issues, "placeholder: reply contains bracketed tokens")
	}
	if words < c.MinWords || (c.MaxWords > 0 && words > c.MaxWords) {
		issues = append(issues, fmt.Sprintf("length: %d words outside [%d, %d]", words, c.MinWords, c.MaxWords))
	}
	if name := strings.TrimSpace(c.BusinessName); name != "" && !strings.Contains(lower, strings.ToLower(name)) {
		issues = append(issues, fmt.Sprintf("business name: %q not mentioned", name))
	}
	if sig := strings.TrimSpace(c.Signature); sig != "" && !strings.HasSuffix(lower, strings.ToLower(sig)) {
		issues = append(issues, fmt.Sprintf("signature mismatch: reply must end with %q", sig))
	}
	for _, v := range g.Violations {
		if v.Severity == domain.SeverityHigh {
			issues = append(issues, fmt.Sprintf("compliance: %s: %s", v.Code, v.Message))
		}
	}

	return Result{
		OK:            len(issues) == 0 && !g.Blocked,
		Issues:        issues,
		Blocked:       g.Blocked,
		Violations:    g.Violations,
		SanitizedText: text,
		WordCount:     words,
	}
}
