package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

const judgeSystemPrompt = `You judge whether CSS selectors point at repeating product/item containers on a web page.

You receive a JSON array of candidates. Each has a selector, a text sample from one matched element, and structural features (match count, depth, price/link/image presence).

A valid item container wraps ONE product/listing/offer: a name, usually a price, often a link and an image. Navigation menus, cookie banners, footers, style/script blocks and page-level wrappers are NOT item containers.

Reply ONLY with a JSON array, one object per candidate, in the same order:
[{"selector": "...", "is_valid": true, "confidence": 0.9, "rationale": "short reason"}]`

const matchSystemPrompt = `You judge whether products satisfy a set of semantic tags (dietary, quality or attribute constraints such as "gluten-free", "organic", "premium").

You receive a JSON array of items (name plus surrounding text) and a list of tags. An item matches only if its text supports EVERY tag.

Reply ONLY with a JSON array of booleans, one per item, in the same order:
[true, false, true]`

func buildJudgePrompt(candidates []Candidate, instruction string) (string, error) {
	data, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Candidates:\n")
	sb.Write(data)
	if instruction != "" {
		fmt.Fprintf(&sb, "\n\nThe user's extraction request, for context: %q\n", instruction)
	}
	sb.WriteString("\nJudge each candidate.")
	return sb.String(), nil
}

func buildMatchPrompt(items []Item, tags []string) (string, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Items:\n")
	sb.Write(data)
	fmt.Fprintf(&sb, "\n\nTags: %s\n\nJudge each item.", strings.Join(tags, ", "))
	return sb.String(), nil
}

// extractJSON pulls the first balanced JSON array out of a model reply that
// may wrap it in prose or a code fence.
func extractJSON(response string) (string, error) {
	start := strings.Index(response, "[")
	if start == -1 {
		return "", fmt.Errorf("no JSON array in response")
	}
	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON array in response")
}

func parseVerdicts(response string, want int) ([]Verdict, error) {
	raw, err := extractJSON(response)
	if err != nil {
		return nil, err
	}
	var verdicts []Verdict
	if err := json.Unmarshal([]byte(raw), &verdicts); err != nil {
		return nil, err
	}
	if len(verdicts) != want {
		return nil, fmt.Errorf("got %d verdicts, want %d", len(verdicts), want)
	}
	return verdicts, nil
}

func parseBools(response string, want int) ([]bool, error) {
	raw, err := extractJSON(response)
	if err != nil {
		return nil, err
	}
	var out []bool
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if len(out) != want {
		return nil, fmt.Errorf("got %d judgments, want %d", len(out), want)
	}
	return out, nil
}
