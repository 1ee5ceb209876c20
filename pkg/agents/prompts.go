package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const promptJoiner = "\n\n---\n\n"

// languageTag is the last segment of a connector identifier; it selects the
// language_<tag>.md fragment during prompt composition.
func languageTag(connector string) string {
	parts := strings.Split(connector, "-")
	return parts[len(parts)-1]
}

// composePromptDir concatenates a directory's .md files in lexical order.
// Fragments named language_<tag>.md are dialect-specific: exactly the one
// matching the connector's tag is included, the rest are skipped.
func composePromptDir(dir, connector string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading prompt directory: %w", err)
	}

	tag := languageTag(connector)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if strings.HasPrefix(e.Name(), "language_") {
			if e.Name() != "language_"+tag+".md" {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("reading prompt fragment %s: %w", name, err)
		}
		parts = append(parts, strings.TrimSpace(string(content)))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("prompt directory %s has no usable .md fragments", dir)
	}
	return strings.Join(parts, promptJoiner), nil
}

// substitutePrompt resolves the text-level placeholders before storage.
func substitutePrompt(text, graphName, scenarioPrefix string) string {
	text = strings.ReplaceAll(text, "{graph_name}", graphName)
	text = strings.ReplaceAll(text, "{scenario_prefix}", scenarioPrefix)
	return text
}
