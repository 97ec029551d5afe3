package render

import (
	"encoding/json"
	"fmt"
)

const PlatformSlack = "slack"

// Slack Block Kit limits.
const (
	slackSectionMax      = 3000
	slackHeaderMax       = 150
	slackFieldsPerBlock  = 10
	slackFieldTextMax    = 2000
	slackBlocksMax       = 50
	slackContextMax      = 3000
	slackFallbackTextMax = 3000
)

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Slack renders Block Kit: a header, the body as one or more mrkdwn sections,
// fields as two-column sections and the footer as a context block.
type Slack struct{}

func NewSlack() *Slack { return &Slack{} }

func (s *Slack) Render(msg Message, notes *Notes) (Payload, error) {
	header, cut := truncate(msg.Heading, slackHeaderMax)
	if cut {
		notes.Add("slack: header truncated to %d characters", slackHeaderMax)
	}
	fallback, _ := truncate(msg.Heading, slackFallbackTextMax)

	blocks := []slackBlock{{Type: "header", Text: &slackText{Type: "plain_text", Text: header}}}
	for _, c := range Split(msg.Body, slackSectionMax) {
		blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: c}})
	}
	blocks = append(blocks, slackFieldBlocks(msg.Fields, notes)...)
	if msg.Footer != "" {
		text, _ := truncate(msg.Footer, slackContextMax)
		blocks = append(blocks, slackBlock{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: text}}})
	}

	if len(blocks) > slackBlocksMax {
		notes.Add("slack: %d blocks, kept the first %d", len(blocks), slackBlocksMax)
		blocks = blocks[:slackBlocksMax]
	}

	body, err := json.Marshal(slackMessage{Text: fallback, Blocks: blocks})
	if err != nil {
		return Payload{}, fmt.Errorf("slack marshal: %w", err)
	}
	return Payload{ContentType: ContentTypeJSON, Body: body}, nil
}

func slackFieldBlocks(in []Field, notes *Notes) []slackBlock {
	if len(in) == 0 {
		return nil
	}
	var out []slackBlock
	for start := 0; start < len(in); start += slackFieldsPerBlock {
		end := min(start+slackFieldsPerBlock, len(in))
		elems := make([]slackText, 0, end-start)
		for _, f := range in[start:end] {
			text := f.Value
			if !blank(f.Name) {
				text = "*" + f.Name + "*\n" + f.Value
			}
			text, cut := truncate(text, slackFieldTextMax)
			if cut {
				notes.Add("slack: field %q truncated", f.Name)
			}
			if blank(text) {
				text = " "
			}
			elems = append(elems, slackText{Type: "mrkdwn", Text: text})
		}
		out = append(out, slackBlock{Type: "section", Fields: elems})
	}
	return out
}
