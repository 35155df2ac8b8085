package compliance

import (
	"regexp"
	"strings"
)

// PrivacySentence is appended whenever patient-confirmation language was rewritten.
const PrivacySentence = "To protect everyone's privacy, we never discuss individual care in public, so please contact our office directly with any questions."

const (
	redactedMarker = "[redacted]"
	emailMarker    = "[email removed]"
	phoneMarker    = "[phone removed]"
	dateMarker     = "[date removed]"
)

// rewriteRule detects one patient-confirmation template and rewrites it in place.
type rewriteRule struct {
	re          *regexp.Regexp
	replacement string
}

// Order matters: the longer "as our patient" form must run before "our patient".
var confirmationRules = []rewriteRule{
	{regexp.MustCompile(`(?i)\bas your (dentist|doctor|physician|provider|hygienist|orthodontist|therapist|chiropractor|surgeon)\b`), "at our office"},
	{regexp.MustCompile(`(?i)\bas (a|our) (patient|client)\b`), "as a member of our community"},
	{regexp.MustCompile(`(?i)\bour (patient|client)s?\b`), "our community"},
	{regexp.MustCompile(`(?i)\byour (appointment|visit|exam|session|check-?up)\b`), "a visit"},
	{regexp.MustCompile(`(?i)\byour (treatment|procedure|surgery|diagnosis)\b`), "your experience"},
}

type phiMarker struct {
	re    *regexp.Regexp
	label string
}

var highConfidencePHI = []phiMarker{
	{regexp.MustCompile(`(?i)\b(dob|date of birth|birth ?date)\b|\bd\.o\.b\b`), "date of birth"},
	{regexp.MustCompile(`(?i)\b(ssn|social security)\b`), "social security number"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "ssn-shaped number"},
	{regexp.MustCompile(`(?i)\b(mrn|medical record|chart number)\b`), "medical record number"},
}

var (
	emailRe = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
		regexp.MustCompile(`(?i)\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?\s+\d{1,2}(st|nd|rd|th)?(,?\s+\d{4})?\b`),
	}

	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// DefaultProcedureKeywords is used when a Policy does not supply its own list.
var DefaultProcedureKeywords = []string{
	"root canal", "crown", "implant", "extraction", "filling", "whitening",
	"braces", "invisalign", "veneer", "denture", "wisdom teeth", "wisdom tooth",
	"deep cleaning", "scaling", "botox", "dermal filler", "biopsy", "x-ray",
	"injection", "vaccine", "physical therapy", "chemotherapy", "surgery",
}

func keywordRe(kw string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(kw)) + `(s|es)?\b`)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) == 11 && out[0] == '1' {
		out = out[1:]
	}
	return out
}

// tidy collapses horizontal whitespace, trims lines and squeezes blank runs.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// splitSentences keeps separators attached so joining the parts restores the input.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			j := i
			for j < len(s) && (s[j] == '\n' || s[j] == '\r') {
				j++
			}
			out = append(out, s[start:j])
			start = j
			i = j - 1
		case '.', '!', '?':
			j := i
			for j < len(s) && (s[j] == '.' || s[j] == '!' || s[j] == '?') {
				j++
			}
			if j == len(s) || s[j] == ' ' || s[j] == '\t' || s[j] == '\n' {
				for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
					j++
				}
				out = append(out, s[start:j])
				start = j
			}
			i = j - 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func capitalizeLike(match, repl string) string {
	if match == "" || repl == "" {
		return repl
	}
	if c := match[0]; c >= 'A' && c <= 'Z' {
		return strings.ToUpper(repl[:1]) + repl[1:]
	}
	return repl
}
