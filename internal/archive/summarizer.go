package archive

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/carverlabs/scribe/pkg/types"
)

const (
	// maxTopics caps the topic list per summary.
	maxTopics = 10

	// openingExcerpt bounds how much of the first user turn the summary quotes.
	openingExcerpt = 160
)

// topicRe picks up "verb + object" phrases from transcript prose. The object
// runs until punctuation, so a phrase reads like "fixed the login timeout".
var topicRe = regexp.MustCompile(`(?i)\b(?:working on|worked on|fixing|fixed|implementing|implemented|debugging|debugged|adding|added|building|built|refactoring|refactored|investigating|investigated)\s+(?:the\s+|a\s+|an\s+)?([a-z0-9][\w /-]{2,48})`)

// Summarize derives a session digest without a model in the loop: turns are
// counted by their USER:/ASSISTANT: line prefixes, and topics come from verb
// phrases spotted in the text.
func Summarize(sessionID, content string) *types.SessionSummary {
	userTurns, agentTurns, opening := countTurns(content)
	topics := extractTopics(content)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d user and %d assistant turns", userTurns, agentTurns)
	if opening != "" {
		sb.WriteString(". Opening request: " + opening)
	}
	if len(topics) > 0 {
		sb.WriteString(". Topics: " + strings.Join(topics, ", "))
	}

	return &types.SessionSummary{
		SessionID:    sessionID,
		Summary:      sb.String(),
		Topics:       topics,
		UserTurns:    userTurns,
		AgentTurns:   agentTurns,
		SourceLength: utf8.RuneCountInString(content),
	}
}

// countTurns groups transcript lines by their role prefix. Unprefixed lines
// continue the current turn and are not counted again.
func countTurns(content string) (user, agent int, opening string) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "USER:"):
			user++
			if opening == "" {
				opening = headRunes(strings.TrimSpace(strings.TrimPrefix(trimmed, "USER:")), openingExcerpt)
			}
		case strings.HasPrefix(trimmed, "ASSISTANT:"):
			agent++
		}
	}
	return user, agent, opening
}

// extractTopics returns up to maxTopics distinct topic phrases in order of
// first appearance. Dedup is case-insensitive.
func extractTopics(content string) []string {
	var topics []string
	seen := make(map[string]bool)
	for _, m := range topicRe.FindAllStringSubmatch(content, -1) {
		topic := strings.TrimSpace(m[1])
		key := strings.ToLower(topic)
		if topic == "" || seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, topic)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

// headRunes keeps the first n runes of s.
func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
