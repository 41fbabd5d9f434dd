package classify

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule maps lines matching Pattern to Severity.
type Rule struct {
	Pattern  string   `yaml:"pattern"`
	Severity Severity `yaml:"severity"`
}

// Rules is the YAML document a RuleClassifier is built from:
//
//	default: info
//	rules:
//	  - pattern: '^panic:'
//	    severity: fatal
//	  - pattern: '(?i)deprecated'
//	    severity: ignore
type Rules struct {
	Default Severity `yaml:"default"`
	Rules   []Rule   `yaml:"rules"`
}

type compiledRule struct {
	re  *regexp.Regexp
	sev Severity
}

// RuleClassifier applies the first matching rule, falling back to the
// default severity.
type RuleClassifier struct {
	rules []compiledRule
	def   Severity
}

// Compile validates every pattern.
func (r Rules) Compile() (*RuleClassifier, error) {
	rc := &RuleClassifier{def: r.Default, rules: make([]compiledRule, 0, len(r.Rules))}
	for i, rule := range r.Rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rc.rules = append(rc.rules, compiledRule{re: re, sev: rule.Severity})
	}
	return rc, nil
}

// ParseRules decodes and compiles a YAML rules document. A document that
// omits "default" classifies unmatched lines as Info.
func ParseRules(data []byte) (*RuleClassifier, error) {
	r := Rules{Default: Info}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse classifier rules: %w", err)
	}
	return r.Compile()
}

// LoadRules reads and compiles the YAML rules file at path.
func LoadRules(path string) (*RuleClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier rules: %w", err)
	}
	return ParseRules(data)
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(line string) Severity {
	for _, r := range c.rules {
		if r.re.MatchString(line) {
			return r.sev
		}
	}
	return c.def
}
