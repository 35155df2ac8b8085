// Package compliance detects privacy and policy violations in outbound text
// and produces a sanitized version of it. Check is pure and safe for
// concurrent use.
package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"reviewdesk/internal/domain"
)

// Policy is the caller-supplied configuration for one guard run.
type Policy struct {
	BannedPhrases     []string
	AllowedEmails     []string // the business's own published channels
	AllowedPhones     []string
	ProcedureKeywords []string // nil falls back to DefaultProcedureKeywords
	Signature         string   // the privacy sentence is inserted before it when present
	BusinessName      string
}

type Input struct {
	Target     domain.Target
	Text       string
	ReviewText string // original review, used for reply targets only
}

type Result struct {
	Blocked       bool
	SanitizedText string
	Violations    []domain.Violation
}

// Codes returns the distinct violation codes in detection order.
func (r Result) Codes() []domain.ViolationCode {
	seen := map[domain.ViolationCode]bool{}
	var out []domain.ViolationCode
	for _, v := range r.Violations {
		if !seen[v.Code] {
			seen[v.Code] = true
			out = append(out, v.Code)
		}
	}
	return out
}

// BlockingCodes returns the codes responsible for Blocked.
func (r Result) BlockingCodes() []domain.ViolationCode {
	var out []domain.ViolationCode
	for _, c := range r.Codes() {
		if c == domain.CodeHighConfidencePHI {
			out = append(out, c)
		}
	}
	return out
}

// Check runs every detection stage, then sanitizes the text in a fixed order.
func Check(in Input, p Policy) Result {
	var vs []domain.Violation

	confirm := detectPatientConfirmation(in.Text)
	vs = append(vs, confirm...)
	vs = append(vs, detectBannedPhrases(in.Text, p.BannedPhrases)...)
	vs = append(vs, detectHighConfidencePHI(in.Text)...)
	vs = append(vs, detectPossiblePHI(in.Text, p)...)

	var unconfirmed []string
	if in.Target == domain.TargetReviewReply {
		unconfirmed = unconfirmedProcedures(p.maskOwnNames(in.Text), in.ReviewText, p.procedureKeywords())
		for _, kw := range unconfirmed {
			vs = append(vs, domain.Violation{
				Code:     domain.CodeProcedureMentionNotInReview,
				Severity: domain.SeverityMedium,
				Message:  fmt.Sprintf("reply mentions %q which the review does not", kw),
				Meta:     map[string]string{"keyword": kw},
			})
		}
	}

	return Result{
		Blocked:       blocked(vs),
		SanitizedText: sanitize(in.Text, p, len(confirm) > 0, unconfirmed),
		Violations:    vs,
	}
}

func blocked(vs []domain.Violation) bool {
	for _, v := range vs {
		if v.Code == domain.CodeHighConfidencePHI {
			return true
		}
	}
	return false
}

func (p Policy) procedureKeywords() []string {
	if p.ProcedureKeywords != nil {
		return p.ProcedureKeywords
	}
	return DefaultProcedureKeywords
}

/********** detection **********/

func detectPatientConfirmation(text string) []domain.Violation {
	var out []domain.Violation
	for _, r := range confirmationRules {
		if m := r.re.FindString(text); m != "" {
			out = append(out, domain.Violation{
				Code:     domain.CodeNeverConfirmPatient,
				Severity: domain.SeverityHigh,
				Message:  "text implies the person is a patient or client",
				Meta:     map[string]string{"phrase": m},
			})
		}
	}
	return out
}

func detectBannedPhrases(text string, phrases []string) []domain.Violation {
	lower := strings.ToLower(text)
	var out []domain.Violation
	for _, ph := range phrases {
		ph = strings.TrimSpace(ph)
		if ph == "" || !strings.Contains(lower, strings.ToLower(ph)) {
			continue
		}
		out = append(out, domain.Violation{
			Code:     domain.CodeBannedPhraseMatch,
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("banned phrase %q", ph),
			Meta:     map[string]string{"phrase": ph},
		})
	}
	return out
}

func detectHighConfidencePHI(text string) []domain.Violation {
	var out []domain.Violation
	for _, m := range highConfidencePHI {
		if m.re.MatchString(text) {
			out = append(out, domain.Violation{
				Code:     domain.CodeHighConfidencePHI,
				Severity: domain.SeverityHigh,
				Message:  "text contains a " + m.label,
				Meta:     map[string]string{"marker": m.label},
			})
		}
	}
	return out
}

func detectPossiblePHI(text string, p Policy) []domain.Violation {
	var out []domain.Violation
	add := func(kind string) {
		out = append(out, domain.Violation{
			Code:     domain.CodePossiblePHI,
			Severity: domain.SeverityMedium,
			Message:  "text contains a " + kind,
			Meta:     map[string]string{"kind": kind},
		})
	}
	for _, e := range emailRe.FindAllString(text, -1) {
		if !p.emailAllowed(e) {
			add("email address")
		}
	}
	for _, ph := range phoneRe.FindAllString(text, -1) {
		if !p.phoneAllowed(ph) {
			add("phone number")
		}
	}
	for _, re := range dateRes {
		for range re.FindAllString(text, -1) {
			add("date")
		}
	}
	return out
}

func unconfirmedProcedures(reply, review string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		re := keywordRe(kw)
		if re.MatchString(reply) && !re.MatchString(review) {
			out = append(out, kw)
		}
	}
	return out
}

// maskOwnNames blanks the business name and signature so keywords inside
// them ("Crown Dental") are not read as procedure mentions.
func (p Policy) maskOwnNames(s string) string {
	for _, own := range []string{p.Signature, p.BusinessName} {
		if own = strings.TrimSpace(own); own != "" {
			s = regexp.MustCompile(`(?i)`+regexp.QuoteMeta(own)).ReplaceAllStringFunc(s, func(m string) string {
				return strings.Repeat(" ", len(m))
			})
		}
	}
	return s
}

func (p Policy) emailAllowed(e string) bool {
	for _, a := range p.AllowedEmails {
		if strings.EqualFold(strings.TrimSpace(a), e) {
			return true
		}
	}
	return false
}

func (p Policy) phoneAllowed(ph string) bool {
	d := digitsOnly(ph)
	for _, a := range p.AllowedPhones {
		if ad := digitsOnly(a); ad != "" && ad == d {
			return true
		}
	}
	return false
}

/********** sanitization **********/

func sanitize(text string, p Policy, confirmed bool, unconfirmed []string) string {
	out := text

	// 1) banned phrases
	for _, ph := range p.BannedPhrases {
		if ph = strings.TrimSpace(ph); ph != "" {
			out = regexp.MustCompile(`(?i)`+regexp.QuoteMeta(ph)).ReplaceAllString(out, redactedMarker)
		}
	}

	// 2) contact details and dates
	out = emailRe.ReplaceAllStringFunc(out, func(m string) string {
		if p.emailAllowed(m) {
			return m
		}
		return emailMarker
	})
	out = phoneRe.ReplaceAllStringFunc(out, func(m string) string {
		if p.phoneAllowed(m) {
			return m
		}
		return phoneMarker
	})
	for _, re := range dateRes {
		out = re.ReplaceAllString(out, dateMarker)
	}
	out = tidy(out)

	// 3) patient confirmation templates
	if confirmed {
		for _, r := range confirmationRules {
			repl := r.replacement
			out = r.re.ReplaceAllStringFunc(out, func(m string) string { return capitalizeLike(m, repl) })
		}
		out = withPrivacySentence(out, p.Signature)
	}

	// 4) sentences about procedures the reviewer never mentioned
	if len(unconfirmed) > 0 {
		res := make([]*regexp.Regexp, 0, len(unconfirmed))
		for _, kw := range unconfirmed {
			res = append(res, keywordRe(kw))
		}
		body, sig := splitSignature(out, p.Signature)
		var b strings.Builder
		for _, s := range splitSentences(body) {
			if !matchesAny(p.maskOwnNames(s), res) {
				b.WriteString(s)
			}
		}
		out = tidy(b.String())
		if sig != "" {
			sep := body[len(strings.TrimRight(body, " \t\n")):]
			if sep == "" {
				sep = " "
			}
			if out == "" {
				sep = ""
			}
			out = out + sep + sig
		}
		if confirmed {
			out = withPrivacySentence(out, p.Signature)
		}
	}

	return tidy(out)
}

func matchesAny(s string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// splitSignature detaches a trailing signature from s.
func splitSignature(s, signature string) (body, sig string) {
	sig = strings.TrimSpace(signature)
	if sig == "" || len(s) < len(sig) || !strings.EqualFold(s[len(s)-len(sig):], sig) {
		return s, ""
	}
	return s[:len(s)-len(sig)], s[len(s)-len(sig):]
}

// withPrivacySentence appends PrivacySentence once, keeping a trailing
// signature as the last thing in the text.
func withPrivacySentence(s, signature string) string {
	if strings.Contains(strings.ToLower(s), strings.ToLower(PrivacySentence)) {
		return s
	}
	sig := strings.TrimSpace(signature)
	if sig != "" && len(s) >= len(sig) && strings.EqualFold(s[len(s)-len(sig):], sig) {
		head := s[:len(s)-len(sig)]
		trimmed := strings.TrimRight(head, " \t\n")
		sep := head[len(trimmed):]
		if sep == "" {
			sep = " "
		}
		if trimmed == "" {
			return PrivacySentence + sep + s[len(s)-len(sig):]
		}
		return trimmed + " " + PrivacySentence + sep + s[len(s)-len(sig):]
	}
	if strings.TrimSpace(s) == "" {
		return PrivacySentence
	}
	return strings.TrimSpace(s) + " " + PrivacySentence
}
