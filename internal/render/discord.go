package render

import (
	"encoding/json"
	"fmt"

	"alerticorn/internal/event"
)

const PlatformDiscord = "discord"

// Discord webhook limits.
const (
	discordDescriptionMax = 4096
	discordEmbedsMax      = 10
	discordFieldsMax      = 25
	discordFieldNameMax   = 256
	discordFieldValueMax  = 1024
	discordTitleMax       = 256
	discordFooterMax      = 2048
)

// Embed colors.
const (
	ColorRed   = 0xFF0000
	ColorGreen = 0x2ECC71
	ColorGrey  = 0x95A5A6
)

// zeroWidth stands in for empty field names/values, which Discord rejects.
const zeroWidth = "​"

type discordWebhook struct {
	Content  string         `json:"content,omitempty"`
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Discord renders embeds. The heading becomes the first embed's title; a body
// longer than one description is continued in further embeds.
type Discord struct {
	// Username overrides the webhook's display name when set.
	Username string
}

func NewDiscord() *Discord { return &Discord{} }

func (d *Discord) Render(msg Message, notes *Notes) (Payload, error) {
	color := kindColor(msg.Kind)
	if msg.Color != nil {
		color = *msg.Color
	}

	chunks := Split(msg.Body, discordDescriptionMax)
	if len(chunks) > discordEmbedsMax {
		notes.Add("discord: body needs %d embeds, truncated to %d", len(chunks), discordEmbedsMax)
		chunks = chunks[:discordEmbedsMax]
		chunks[len(chunks)-1] = ellipsize(chunks[len(chunks)-1], discordDescriptionMax)
	}

	title, cut := truncate(msg.Heading, discordTitleMax)
	if cut {
		notes.Add("discord: title truncated to %d characters", discordTitleMax)
	}

	embeds := make([]discordEmbed, len(chunks))
	for i, c := range chunks {
		embeds[i] = discordEmbed{Description: c, Color: color}
	}
	embeds[0].Title = title

	last := &embeds[len(embeds)-1]
	last.Fields = discordFields(msg.Fields, notes)
	if msg.Footer != "" {
		text, cut := truncate(msg.Footer, discordFooterMax)
		if cut {
			notes.Add("discord: footer truncated to %d characters", discordFooterMax)
		}
		last.Footer = &discordFooter{Text: text}
	}

	body, err := json.Marshal(discordWebhook{Username: d.Username, Embeds: embeds})
	if err != nil {
		return Payload{}, fmt.Errorf("discord marshal: %w", err)
	}
	return Payload{ContentType: ContentTypeJSON, Body: body}, nil
}

func discordFields(in []Field, notes *Notes) []discordField {
	if len(in) == 0 {
		return nil
	}
	if len(in) > discordFieldsMax {
		notes.Add("discord: %d fields, kept the first %d", len(in), discordFieldsMax)
		in = in[:discordFieldsMax]
	}
	out := make([]discordField, 0, len(in))
	for _, f := range in {
		name, nameCut := truncate(f.Name, discordFieldNameMax)
		value, valueCut := truncate(f.Value, discordFieldValueMax)
		if nameCut || valueCut {
			notes.Add("discord: field %q truncated", f.Name)
		}
		if blank(name) {
			name = zeroWidth
		}
		if blank(value) {
			value = zeroWidth
		}
		out = append(out, discordField{Name: name, Value: value, Inline: f.Inline})
	}
	return out
}

func kindColor(k event.Kind) int {
	switch k {
	case event.Fail:
		return ColorRed
	case event.Success:
		return ColorGreen
	default:
		return ColorGrey
	}
}
