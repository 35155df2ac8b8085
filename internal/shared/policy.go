package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reviewdesk/internal/compliance"
	"reviewdesk/internal/quality"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy is the reply and compliance configuration for one business.
type Policy struct {
	BusinessName      string   `yaml:"business_name"`
	Signature         string   `yaml:"signature"`
	MinWords          int      `yaml:"min_words"`
	MaxWords          int      `yaml:"max_words"`
	BannedPhrases     []string `yaml:"banned_phrases"`
	BusinessEmail     string   `yaml:"business_email"`
	BusinessPhone     string   `yaml:"business_phone"`
	ProcedureKeywords []string `yaml:"procedure_keywords"`
	RiskFlagPatterns  []string `yaml:"risk_flag_patterns"`
}

// LoadPolicy reads path over the embedded defaults. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(defaultPolicyYAML, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing default policy: %w", err)
	}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy: %w", err)
	}
	return ParsePolicy(data, p)
}

// ParsePolicy overlays YAML onto base.
func ParsePolicy(data []byte, base Policy) (Policy, error) {
	p := base
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing policy: %w", err)
	}
	if p.MaxWords > 0 && p.MinWords > p.MaxWords {
		return Policy{}, fmt.Errorf("policy: min_words %d exceeds max_words %d", p.MinWords, p.MaxWords)
	}
	return p, nil
}

func (p Policy) Compliance() compliance.Policy {
	c := compliance.Policy{
		BannedPhrases:     p.BannedPhrases,
		ProcedureKeywords: p.ProcedureKeywords,
		Signature:         p.Signature,
		BusinessName:      p.BusinessName,
	}
	if p.BusinessEmail != "" {
		c.AllowedEmails = []string{p.BusinessEmail}
	}
	if p.BusinessPhone != "" {
		c.AllowedPhones = []string{p.BusinessPhone}
	}
	return c
}

// Contract builds the reply contract for one reviewer.
func (p Policy) Contract(authorName, reviewText string) quality.Contract {
	return quality.Contract{
		ReviewerFirstName: quality.FirstName(authorName),
		BusinessName:      p.BusinessName,
		Signature:         p.Signature,
		MinWords:          p.MinWords,
		MaxWords:          p.MaxWords,
		BannedPhrases:     p.BannedPhrases,
		ReviewText:        reviewText,
		BusinessEmail:     p.BusinessEmail,
		BusinessPhone:     p.BusinessPhone,
		ProcedureKeywords: p.ProcedureKeywords,
	}
}

// IsRiskFlag reports whether flag matches one of the configured risk patterns.
func (p Policy) IsRiskFlag(flag string) bool {
	low := strings.ToLower(flag)
	for _, pat := range p.RiskFlagPatterns {
		if pat = strings.ToLower(strings.TrimSpace(pat)); pat != "" && strings.Contains(low, pat) {
			return true
		}
	}
	return false
}
