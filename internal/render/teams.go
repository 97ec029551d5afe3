package render

import (
	"encoding/json"
	"fmt"

	"alerticorn/internal/event"
)

const PlatformTeams = "teams"

const adaptiveCardSchema = "http://adaptivecards.io/schemas/adaptive-card.json"

type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string    `json:"contentType"`
	Content     teamsCard `json:"content"`
}

type teamsCard struct {
	Schema  string         `json:"$schema"`
	Type    string         `json:"type"`
	Version string         `json:"version"`
	Body    []teamsElement `json:"body"`
}

type teamsElement struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	Size     string      `json:"size,omitempty"`
	Weight   string      `json:"weight,omitempty"`
	Color    string      `json:"color,omitempty"`
	Wrap     bool        `json:"wrap,omitempty"`
	IsSubtle bool        `json:"isSubtle,omitempty"`
	Facts    []teamsFact `json:"facts,omitempty"`
}

type teamsFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Teams renders an Adaptive Card for Workflows-based incoming webhooks.
type Teams struct{}

func NewTeams() *Teams { return &Teams{} }

func (t *Teams) Render(msg Message, _ *Notes) (Payload, error) {
	body := []teamsElement{
		{Type: "TextBlock", Text: msg.Heading, Size: "Medium", Weight: "Bolder", Color: teamsColor(msg.Kind), Wrap: true},
		{Type: "TextBlock", Text: msg.Body, Wrap: true},
	}
	if len(msg.Fields) > 0 {
		facts := make([]teamsFact, 0, len(msg.Fields))
		for _, f := range msg.Fields {
			facts = append(facts, teamsFact{Title: f.Name, Value: f.Value})
		}
		body = append(body, teamsElement{Type: "FactSet", Facts: facts})
	}
	if msg.Footer != "" {
		body = append(body, teamsElement{Type: "TextBlock", Text: msg.Footer, Size: "Small", IsSubtle: true, Wrap: true})
	}

	out, err := json.Marshal(teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content:     teamsCard{Schema: adaptiveCardSchema, Type: "AdaptiveCard", Version: "1.4", Body: body},
		}},
	})
	if err != nil {
		return Payload{}, fmt.Errorf("teams marshal: %w", err)
	}
	return Payload{ContentType: ContentTypeJSON, Body: out}, nil
}

func teamsColor(k event.Kind) string {
	switch k {
	case event.Fail:
		return "Attention"
	case event.Success:
		return "Good"
	default:
		return "Default"
	}
}
