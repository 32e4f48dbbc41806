package classify_test

import (
	"context"
	"testing"

	"docflow/internal/classify"
)

func TestKeywordClassifier(t *testing.T) {
	c, err := classify.NewKeywordClassifier(map[string][]string{
		"invoice": {"invoice", "amount due"},
		"report":  {"findings", "summary"},
	})
	if err != nil {
		t.Fatalf("NewKeywordClassifier failed: %v", err)
	}

	tests := []struct {
		name  string
		text  string
		label string
	}{
		{"invoice", "INVOICE #12: Amount Due 40 EUR", "invoice"},
		{"report", "Summary of findings and further findings", "report"},
		{"tie goes to first label", "invoice summary", "invoice"},
		{"no match", "hello world", classify.Unclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.Classify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if result.Label != tt.label {
				t.Fatalf("label = %q want %q (scores %v)", result.Label, tt.label, result.Scores)
			}
		})
	}
}

func TestKeywordClassifierRequiresLabels(t *testing.T) {
	if _, err := classify.NewKeywordClassifier(nil); err == nil {
		t.Fatal("expected error without labels")
	}
}
