// Package classify assigns a label to document text.
package classify

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Unclassified is returned when no keyword matches.
const Unclassified = "unclassified"

// Result is the outcome for one document.
type Result struct {
	Label  string         `json:"label"`
	Score  int            `json:"score"`
	Scores map[string]int `json:"scores,omitempty"`
}

// Classifier labels text. Implementations may call remote model services.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// KeywordClassifier scores labels by keyword occurrences.
type KeywordClassifier struct {
	labels map[string][]string
	order  []string
}

// NewKeywordClassifier builds a classifier from label -> keywords.
func NewKeywordClassifier(labels map[string][]string) (*KeywordClassifier, error) {
	if len(labels) == 0 {
		return nil, errors.New("keyword classifier requires at least one label")
	}
	fold := cases.Fold()
	c := &KeywordClassifier{labels: make(map[string][]string, len(labels))}
	for label, keywords := range labels {
		folded := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			if kw = strings.TrimSpace(fold.String(kw)); kw != "" {
				folded = append(folded, kw)
			}
		}
		c.labels[label] = folded
		c.order = append(c.order, label)
	}
	sort.Strings(c.order)
	return c, nil
}

// Labels returns the configured labels in sorted order.
func (c *KeywordClassifier) Labels() []string {
	return append([]string(nil), c.order...)
}

// Classify picks the label with the most keyword hits; ties go to the
// alphabetically first label.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	// Casers keep state, so each call folds with its own.
	folded := cases.Fold().String(text)
	result := Result{Label: Unclassified, Scores: make(map[string]int, len(c.order))}
	for _, label := range c.order {
		score := 0
		for _, kw := range c.labels[label] {
			score += strings.Count(folded, kw)
		}
		result.Scores[label] = score
		if score > result.Score {
			result.Label = label
			result.Score = score
		}
	}
	return result, nil
}
