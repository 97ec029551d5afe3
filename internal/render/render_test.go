package render

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"alerticorn/internal/event"
)

func TestSplitPreservesContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		n    int
		want int
	}{
		{name: "short", in: "hello", n: 10, want: 1},
		{name: "exact", in: strings.Repeat("a", 10), n: 10, want: 1},
		{name: "over", in: strings.Repeat("a", 25), n: 10, want: 3},
		{name: "runes", in: strings.Repeat("é", 21), n: 10, want: 3},
		{name: "newline", in: strings.Repeat("a", 7) + "\n" + strings.Repeat("b", 7), n: 10, want: 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in, tt.n)
			if len(got) != tt.want {
				t.Fatalf("Split chunks = %d, want %d", len(got), tt.want)
			}
			if strings.Join(got, "") != tt.in {
				t.Fatalf("Split does not concatenate back to input")
			}
			for i, c := range got {
				if runeLen(c) > tt.n {
					t.Fatalf("chunk %d has %d runes, max %d", i, runeLen(c), tt.n)
				}
			}
		})
	}
}

func TestSplitPrefersNewline(t *testing.T) {
	t.Parallel()
	got := Split("aaaaaaa\nbbbbbbb", 10)
	if got[0] != "aaaaaaa\n" {
		t.Fatalf("first chunk = %q, want cut after newline", got[0])
	}
}

func decodeDiscord(t *testing.T, p Payload) discordWebhook {
	t.Helper()
	var out discordWebhook
	if err := json.Unmarshal(p.Body, &out); err != nil {
		t.Fatalf("decode discord payload: %v", err)
	}
	return out
}

func decodeSlack(t *testing.T, p Payload) slackMessage {
	t.Helper()
	var out slackMessage
	if err := json.Unmarshal(p.Body, &out); err != nil {
		t.Fatalf("decode slack payload: %v", err)
	}
	return out
}

func TestDiscordFailEmbed(t *testing.T) {
	t.Parallel()
	reg := NewDefaultRegistry()
	p, notes, err := reg.Render(PlatformDiscord, Message{
		Kind:    event.Fail,
		Heading: "T",
		Body:    "item-a failed",
		Fields:  []Field{{Name: "error", Value: "boom"}},
		Footer:  "alerticorn",
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("unexpected notes: %v", notes)
	}
	if p.ContentType != ContentTypeJSON {
		t.Fatalf("ContentType = %q", p.ContentType)
	}
	got := decodeDiscord(t, p)
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "T" || !strings.Contains(e.Description, "item-a") {
		t.Fatalf("embed = %+v", e)
	}
	if e.Color != ColorRed {
		t.Fatalf("color = %#x, want %#x", e.Color, ColorRed)
	}
	if len(e.Fields) != 1 || e.Fields[0].Value != "boom" {
		t.Fatalf("fields = %+v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "alerticorn" {
		t.Fatalf("footer = %+v", e.Footer)
	}
}

func TestDiscordColorDefaults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind  event.Kind
		color *int
		want  int
	}{
		{kind: event.Fail, want: ColorRed},
		{kind: event.Success, want: ColorGreen},
		{kind: event.Skip, want: ColorGrey},
		{kind: event.SuiteComplete, want: ColorGrey},
		{kind: event.Fail, color: Color(0x123456), want: 0x123456},
	}
	for _, tt := range tests {
		p, _, err := NewDefaultRegistry().Render("Discord", Message{Kind: tt.kind, Heading: "h", Body: "b", Color: tt.color})
		if err != nil {
			t.Fatalf("Render error: %v", err)
		}
		if got := decodeDiscord(t, p).Embeds[0].Color; got != tt.want {
			t.Fatalf("%s color = %#x, want %#x", tt.kind, got, tt.want)
		}
	}
}

func TestDiscordSplitsLongDescription(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("x", discordDescriptionMax) + strings.Repeat("y", discordDescriptionMax) + "zzz"
	p, _, err := NewDefaultRegistry().Render(PlatformDiscord, Message{Heading: "long", Body: body, Footer: "f"})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeDiscord(t, p)
	if len(got.Embeds) != 3 {
		t.Fatalf("embeds = %d, want 3", len(got.Embeds))
	}
	var joined strings.Builder
	for _, e := range got.Embeds {
		joined.WriteString(e.Description)
	}
	if joined.String() != body {
		t.Fatalf("embeds out of order or incomplete")
	}
	if got.Embeds[0].Title != "long" || got.Embeds[1].Title != "" {
		t.Fatalf("title should only be on the first embed")
	}
	if got.Embeds[2].Footer == nil || got.Embeds[0].Footer != nil {
		t.Fatalf("footer should only be on the last embed")
	}
}

func TestDiscordCapsEmbeds(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("x", discordDescriptionMax*12)
	p, notes, err := NewDefaultRegistry().Render(PlatformDiscord, Message{Heading: "h", Body: body})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeDiscord(t, p)
	if len(got.Embeds) != discordEmbedsMax {
		t.Fatalf("embeds = %d, want %d", len(got.Embeds), discordEmbedsMax)
	}
	last := got.Embeds[len(got.Embeds)-1].Description
	if !strings.HasSuffix(last, "…") || runeLen(last) > discordDescriptionMax {
		t.Fatalf("last embed should end with an ellipsis within the limit")
	}
	if len(notes) == 0 {
		t.Fatalf("expected a truncation note")
	}
}

func TestDiscordCapsEmbedsOnPartialChunk(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("y", discordDescriptionMax*9) + strings.Repeat("z", 3000) + "\n" + strings.Repeat("z", 5000)
	p, _, err := NewDefaultRegistry().Render(PlatformDiscord, Message{Heading: "h", Body: body})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeDiscord(t, p)
	last := got.Embeds[len(got.Embeds)-1].Description
	if want := strings.Repeat("z", 3000) + "\n…"; last != want {
		t.Fatalf("last embed = %d runes, want the short chunk plus an ellipsis", runeLen(last))
	}
}

func TestEllipsize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abcd", 4, "abc…"},
		{"abcdef", 4, "abc…"},
		{"ab", 4, "ab…"},
	}
	for _, tc := range cases {
		if got := ellipsize(tc.in, tc.n); got != tc.want {
			t.Fatalf("ellipsize(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestDiscordFieldLimits(t *testing.T) {
	t.Parallel()
	fields := make([]Field, 30)
	for i := range fields {
		fields[i] = Field{Name: "n", Value: "v"}
	}
	fields[0] = Field{Name: "", Value: strings.Repeat("v", 2000)}
	p, notes, err := NewDefaultRegistry().Render(PlatformDiscord, Message{Heading: "h", Body: "b", Fields: fields})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeDiscord(t, p).Embeds[0].Fields
	if len(got) != discordFieldsMax {
		t.Fatalf("fields = %d, want %d", len(got), discordFieldsMax)
	}
	if got[0].Name != zeroWidth {
		t.Fatalf("empty field name = %q", got[0].Name)
	}
	if runeLen(got[0].Value) != discordFieldValueMax {
		t.Fatalf("field value length = %d", runeLen(got[0].Value))
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %v, want 2", notes)
	}
}

func TestSlackBlocks(t *testing.T) {
	t.Parallel()
	p, _, err := NewDefaultRegistry().Render(PlatformSlack, Message{
		Heading: "T2",
		Body:    "something broke",
		Fields:  []Field{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
		Footer:  "foot",
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeSlack(t, p)
	if got.Text != "T2" {
		t.Fatalf("text = %q", got.Text)
	}
	wantTypes := []string{"header", "section", "section", "context"}
	if len(got.Blocks) != len(wantTypes) {
		t.Fatalf("blocks = %+v", got.Blocks)
	}
	for i, w := range wantTypes {
		if got.Blocks[i].Type != w {
			t.Fatalf("block %d type = %q, want %q", i, got.Blocks[i].Type, w)
		}
	}
	if got.Blocks[0].Text.Type != "plain_text" || got.Blocks[0].Text.Text != "T2" {
		t.Fatalf("header = %+v", got.Blocks[0].Text)
	}
	if got.Blocks[1].Text.Text != "something broke" {
		t.Fatalf("body section = %+v", got.Blocks[1].Text)
	}
	if f := got.Blocks[2].Fields; len(f) != 2 || f[0].Text != "*a*\n1" || f[0].Type != "mrkdwn" {
		t.Fatalf("fields = %+v", f)
	}
}

func TestSlackSplitsLongSection(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("s", slackSectionMax*2+10)
	p, _, err := NewDefaultRegistry().Render(PlatformSlack, Message{Heading: "h", Body: body})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeSlack(t, p)
	if len(got.Blocks) != 4 {
		t.Fatalf("blocks = %d, want header + 3 sections", len(got.Blocks))
	}
	var joined strings.Builder
	for _, b := range got.Blocks[1:] {
		if b.Type != "section" || runeLen(b.Text.Text) > slackSectionMax {
			t.Fatalf("bad section block %+v", b.Type)
		}
		joined.WriteString(b.Text.Text)
	}
	if joined.String() != body {
		t.Fatalf("sections do not reassemble the body")
	}
}

func TestSlackFieldsChunkedByTen(t *testing.T) {
	t.Parallel()
	fields := make([]Field, 23)
	for i := range fields {
		fields[i] = Field{Name: "k", Value: "v"}
	}
	p, _, err := NewDefaultRegistry().Render(PlatformSlack, Message{Heading: "h", Body: "b", Fields: fields})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	got := decodeSlack(t, p)
	if len(got.Blocks) != 5 {
		t.Fatalf("blocks = %d, want 5", len(got.Blocks))
	}
	if n := len(got.Blocks[4].Fields); n != 3 {
		t.Fatalf("last field block has %d fields, want 3", n)
	}
}

func TestTeamsCard(t *testing.T) {
	t.Parallel()
	p, _, err := NewDefaultRegistry().Render(PlatformTeams, Message{
		Kind: event.Fail, Heading: "T", Body: "B", Fields: []Field{{Name: "k", Value: "v"}},
	})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	var got teamsMessage
	if err := json.Unmarshal(p.Body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "message" || len(got.Attachments) != 1 {
		t.Fatalf("message = %+v", got)
	}
	card := got.Attachments[0].Content
	if card.Type != "AdaptiveCard" || len(card.Body) != 3 {
		t.Fatalf("card = %+v", card)
	}
	if card.Body[0].Text != "T" || card.Body[0].Color != "Attention" || card.Body[1].Text != "B" {
		t.Fatalf("text blocks = %+v", card.Body[:2])
	}
	if card.Body[2].Type != "FactSet" || card.Body[2].Facts[0].Title != "k" {
		t.Fatalf("facts = %+v", card.Body[2])
	}
}

func TestRoundTripKeepsHeadingAndBodyVisible(t *testing.T) {
	t.Parallel()
	msg := Message{Heading: "Build broke", Body: "TestFoo failed: expected 1 got 2"}
	for _, tag := range NewDefaultRegistry().Platforms() {
		p, _, err := NewDefaultRegistry().Render(tag, msg)
		if err != nil {
			t.Fatalf("%s: Render error: %v", tag, err)
		}
		var generic any
		if err := json.Unmarshal(p.Body, &generic); err != nil {
			t.Fatalf("%s: payload is not JSON: %v", tag, err)
		}
		text := strings.Join(visibleStrings(generic), "\n")
		if !strings.Contains(text, msg.Heading) || !strings.Contains(text, msg.Body) {
			t.Fatalf("%s: heading or body lost in %s", tag, p.Body)
		}
	}
}

func visibleStrings(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		var out []string
		for _, e := range x {
			out = append(out, visibleStrings(e)...)
		}
		return out
	case map[string]any:
		var out []string
		for k, e := range x {
			if k == "type" || k == "$schema" || k == "contentType" {
				continue
			}
			out = append(out, visibleStrings(e)...)
		}
		return out
	}
	return nil
}

func TestRegistryPlaceholders(t *testing.T) {
	t.Parallel()
	p, notes, err := NewDefaultRegistry().Render(PlatformDiscord, Message{Kind: event.Fail})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %v, want 2", notes)
	}
	e := decodeDiscord(t, p).Embeds[0]
	if e.Title != PlaceholderHeading || e.Description != PlaceholderBody {
		t.Fatalf("embed = %+v", e)
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	noop := RendererFunc(func(Message, *Notes) (Payload, error) { return Payload{Body: []byte("{}")}, nil })
	if err := reg.Register("Custom", noop); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := reg.Register("custom", noop); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := reg.Register(" ", noop); err == nil {
		t.Fatal("expected empty tag error")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Fatal("expected nil renderer error")
	}
	if !reg.Has("CUSTOM") {
		t.Fatal("Has should be case-insensitive")
	}
	p, _, err := reg.Render("custom", Message{Heading: "h", Body: "b"})
	if err != nil || p.ContentType != ContentTypeJSON {
		t.Fatalf("Render = %+v, %v", p, err)
	}
	_, _, err = reg.Render("pager", Message{})
	var unknown *UnknownPlatformError
	if !errors.As(err, &unknown) || unknown.Platform != "pager" {
		t.Fatalf("err = %v, want UnknownPlatformError", err)
	}
}
