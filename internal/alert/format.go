package alert

import (
	"encoding/json"
	"fmt"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

var severityColors = map[model.Severity]string{
	model.SeverityLow:      "#36a64f",
	model.SeverityMedium:   "#ffcc00",
	model.SeverityHigh:     "#ff6600",
	model.SeverityCritical: "#ff0000",
}

var severityEmoji = map[model.Severity]string{
	model.SeverityLow:      ":information_source:",
	model.SeverityMedium:   ":warning:",
	model.SeverityHigh:     ":rotating_light:",
	model.SeverityCritical: ":fire:",
}

// formatPayload renders an incident for the named webhook format.
func formatPayload(format string, inc *model.DriftIncident) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(inc)
	case "discord":
		return formatDiscord(inc)
	default:
		return formatGeneric(inc)
	}
}

func formatSlack(inc *model.DriftIncident) ([]byte, error) {
	payload := map[string]any{
		"attachments": []map[string]any{{
			"color": severityColors[inc.Severity],
			"blocks": []map[string]any{
				{
					"type": "section",
					"text": map[string]any{
						"type": "mrkdwn",
						"text": fmt.Sprintf("%s *Drift detected: %s*\n%s",
							severityEmoji[inc.Severity], inc.Detector, inc.Message),
					},
				},
				{
					"type": "section",
					"fields": []map[string]any{
						{"type": "mrkdwn", "text": fmt.Sprintf("*Agent:*\n%s", inc.AgentID)},
						{"type": "mrkdwn", "text": fmt.Sprintf("*Run:*\n%s", inc.RunID)},
						{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:*\n%s", inc.Severity)},
						{"type": "mrkdwn", "text": fmt.Sprintf("*Score:*\n%.2f", inc.Score)},
					},
				},
				{
					"type": "context",
					"elements": []map[string]any{
						{"type": "mrkdwn", "text": fmt.Sprintf("Suggested: %s", inc.SuggestedAction)},
					},
				},
			},
		}},
	}
	return json.Marshal(payload)
}

var discordColors = map[model.Severity]int{
	model.SeverityLow:      0x36a64f,
	model.SeverityMedium:   0xffcc00,
	model.SeverityHigh:     0xff6600,
	model.SeverityCritical: 0xff0000,
}

func formatDiscord(inc *model.DriftIncident) ([]byte, error) {
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       fmt.Sprintf("Drift detected: %s", inc.Detector),
			"description": inc.Message,
			"color":       discordColors[inc.Severity],
			"fields": []map[string]any{
				{"name": "Agent", "value": inc.AgentID, "inline": true},
				{"name": "Run", "value": inc.RunID, "inline": true},
				{"name": "Severity", "value": string(inc.Severity), "inline": true},
				{"name": "Score", "value": fmt.Sprintf("%.2f", inc.Score), "inline": true},
			},
			"footer": map[string]any{"text": inc.SuggestedAction},
		}},
	}
	return json.Marshal(payload)
}

func formatGeneric(inc *model.DriftIncident) ([]byte, error) {
	return json.Marshal(map[string]any{
		"source": "agentwatch",
		"event":  inc,
	})
}
