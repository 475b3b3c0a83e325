// Package corpus loads the legal reference corpus the investigator reasons
// against. The corpus is read once at startup; editing it requires a restart.
package corpus

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provision is one citable rule from the corpus.
type Provision struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// Corpus is the legal reference material injected into analysis prompts.
type Corpus struct {
	LegalContext string      `yaml:"legal_context"`
	Provisions   []Provision `yaml:"provisions"`
}

// Load reads and validates the corpus file.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}

	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	if strings.TrimSpace(c.LegalContext) == "" && len(c.Provisions) == 0 {
		return nil, fmt.Errorf("corpus %s holds no legal context", path)
	}
	return &c, nil
}

// Context renders the corpus as a single prompt block: the free-form
// context followed by each named provision.
func (c *Corpus) Context() string {
	var b strings.Builder
	if ctx := strings.TrimSpace(c.LegalContext); ctx != "" {
		b.WriteString(ctx)
	}
	for _, p := range c.Provisions {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Name)
		b.WriteString(":\n")
		b.WriteString(strings.TrimSpace(p.Text))
	}
	return b.String()
}
