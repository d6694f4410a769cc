package service

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed replies.yaml
var defaultCatalogueYAML []byte

// ReplyRule правило шаблонного ответа
type ReplyRule struct {
	Name     string   `yaml:"name"`
	Match    string   `yaml:"match"`
	Patterns []string `yaml:"patterns"`
	Replies  []string `yaml:"replies"`
}

// Catalogue каталог шаблонов ответов и приглашений
type Catalogue struct {
	Cooldown   time.Duration `yaml:"cooldown"`
	QuietHours struct {
		Start int `yaml:"start"`
		End   int `yaml:"end"`
	} `yaml:"quiet_hours"`
	Rules       []ReplyRule `yaml:"rules"`
	Recruitment struct {
		Group []string `yaml:"group"`
		DM    string   `yaml:"dm"`
	} `yaml:"recruitment"`
}

// ParseCatalogue разбирает YAML каталога и проверяет правила
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse reply catalogue: %w", err)
	}

	for i, rule := range c.Rules {
		if rule.Match != "exact" && rule.Match != "contains" {
			return nil, fmt.Errorf("rule %q: unknown match %q", rule.Name, rule.Match)
		}
		if len(rule.Patterns) == 0 || len(rule.Replies) == 0 {
			return nil, fmt.Errorf("rule %q: patterns and replies are required", rule.Name)
		}
		for j, p := range rule.Patterns {
			c.Rules[i].Patterns[j] = strings.ToLower(p)
		}
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	return &c, nil
}

// DefaultCatalogue встроенный каталог
func DefaultCatalogue() *Catalogue {
	c, err := ParseCatalogue(defaultCatalogueYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// quiet сообщает, попадает ли час в тихие часы [Start, End)
func (c *Catalogue) quiet(hour int) bool {
	start, end := c.QuietHours.Start, c.QuietHours.End
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func fill(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}
