package decision

import (
	"fmt"
	"strings"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"
)

func voteTopic(survey types.Survey, options []types.Option) string {
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = displayLabel(o.Label)
	}
	return fmt.Sprintf("%s\n%s\nWhich of these is the best choice: %s?",
		survey.Title, survey.Description, strings.Join(labels, "; "))
}

func suggestTopic(survey types.Survey, existing []types.Option) string {
	labels := make([]string, len(existing))
	for i, o := range existing {
		labels[i] = displayLabel(o.Label)
	}
	return fmt.Sprintf("%s\n%s\nWhat good option is missing from: %s?",
		survey.Title, survey.Description, strings.Join(labels, "; "))
}

func writeSurvey(b *strings.Builder, survey types.Survey) {
	fmt.Fprintf(b, "Survey: %s\n", survey.Title)
	if survey.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", survey.Description)
	}
}

func writeNotes(b *strings.Builder, notes string) {
	if notes == "" {
		return
	}
	fmt.Fprintf(b, "\nResearch notes:\n%s\n", notes)
}

func votePrompt(survey types.Survey, options []types.Option, counts types.VoteCounts, notes string) string {
	var b strings.Builder
	writeSurvey(&b, survey)
	b.WriteString("\nOptions (key: label):\n")
	for _, o := range options {
		if n, ok := counts[o.Key]; ok {
			fmt.Fprintf(&b, "%s: %s (%d votes)\n", o.Key, o.Label, n)
		} else {
			fmt.Fprintf(&b, "%s: %s\n", o.Key, o.Label)
		}
	}
	writeNotes(&b, notes)
	b.WriteString("\nReply with the key only.")
	return b.String()
}

func suggestPrompt(survey types.Survey, existing []types.Option, notes string) string {
	var b strings.Builder
	writeSurvey(&b, survey)
	b.WriteString("\nExisting options:\n")
	if len(existing) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, o := range existing {
		fmt.Fprintf(&b, "- %s\n", o.Label)
	}
	writeNotes(&b, notes)
	return b.String()
}
