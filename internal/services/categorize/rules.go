package categorize

import (
	"fmt"
	"os"
	"regexp"

	"github.com/ternarybob/bsewire/internal/models"
	"gopkg.in/yaml.v3"
)

// Rule maps headline/body regex patterns to a category. Rules are matched in
// order; the first hit wins. A rule matches when either regex hits.
type Rule struct {
	Category string
	HeadLine *regexp.Regexp
	NewsBody *regexp.Regexp
}

// ruleSpec is the YAML form of a rule for operator overrides.
type ruleSpec struct {
	Category string `yaml:"category"`
	HeadLine string `yaml:"headline"`
	NewsBody string `yaml:"newsbody"`
}

// DefaultRules returns the built-in ordered rule list.
func DefaultRules() []Rule {
	return []Rule{
		{Category: models.CategoryInvestorPresentation, HeadLine: regexp.MustCompile(`(?i)presentation`)},
		{Category: models.CategoryAnnualReport, HeadLine: regexp.MustCompile(`(?i)annual report`)},
		{Category: models.CategoryCreditRating, HeadLine: regexp.MustCompile(`(?i)credit rating`)},
		{
			Category: models.CategoryEarningsCall,
			HeadLine: regexp.MustCompile(`(?i)earnings call|conference call|transcript`),
			NewsBody: regexp.MustCompile(`(?i)concall`),
		},
	}
}

// LoadRules compiles rules from a YAML file, or the defaults when path is
// empty.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var specs []ruleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		if spec.Category == "" {
			return nil, fmt.Errorf("rule %d in %s has no category", i, path)
		}
		rule := Rule{Category: spec.Category}
		if spec.HeadLine != "" {
			re, err := regexp.Compile(`(?i)` + spec.HeadLine)
			if err != nil {
				return nil, fmt.Errorf("rule %d headline pattern: %w", i, err)
			}
			rule.HeadLine = re
		}
		if spec.NewsBody != "" {
			re, err := regexp.Compile(`(?i)` + spec.NewsBody)
			if err != nil {
				return nil, fmt.Errorf("rule %d newsbody pattern: %w", i, err)
			}
			rule.NewsBody = re
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// categoryNames returns the set of rule category labels for Descriptor
// matching.
func categoryNames(rules []Rule) map[string]struct{} {
	names := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		names[r.Category] = struct{}{}
	}
	return names
}
