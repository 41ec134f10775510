// Package docs embeds the user documentation of fsc, one markdown file per
// topic.
//
// Fenced blocks tagged with a kind ("json config", "jsonl operations",
// "markdown events", ...) are executable examples, checked by the tests.
package docs

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

//go:embed *.md
var docs embed.FS

// index is the topic listing the others.
const index = "readme"

// GetTopic returns the content of a documentation topic. "*" returns every
// topic but the index.
func GetTopic(topic string) (string, error) {
	if topic == "*" {
		topics, err := GetAllTopics()
		if err != nil {
			return "", err
		}
		return GetTopics(topics...)
	}
	content, err := docs.ReadFile(topic + ".md")
	if err != nil {
		return "", fmt.Errorf("topic %q not found, see 'fsc topic %s'", topic, index)
	}
	return string(content), nil
}

// GetTopics returns the content of topics, separated by a blank line.
func GetTopics(topics ...string) (string, error) {
	contents := make([]string, 0, len(topics))
	for _, topic := range topics {
		content, err := GetTopic(topic)
		if err != nil {
			return "", err
		}
		contents = append(contents, strings.TrimRight(content, "\n"))
	}
	return strings.Join(contents, "\n\n") + "\n", nil
}

// GetAllTopics returns the sorted names of the topics, the index excluded.
func GetAllTopics() ([]string, error) {
	files, err := fs.Glob(docs, "*.md")
	if err != nil {
		return nil, err
	}
	var topics []string
	for _, f := range files {
		if name := strings.TrimSuffix(f, ".md"); name != index {
			topics = append(topics, name)
		}
	}
	slices.Sort(topics)
	return topics, nil
}
