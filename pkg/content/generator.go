package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCompleter is returned by a Generator built without a language model.
var ErrNoCompleter = errors.New("content generation is not configured")

const promptTemplate = `You are a senior marketing strategist and copywriter for a real estate professional.

Niche: %s
Situation / Trend:
%s

%s
Your job is to create a complete content package for short-form video and social media.

Return content that fits these exact fields (do NOT label them, just write the content for each in order):

1) Headline - a compelling, curiosity-driven hook for the video/post.
2) Thumbnail idea - a short visual concept or text that could appear on a thumbnail.
3) Hashtags - a concise set of relevant hashtags, separated by spaces.
4) Post - a short-form social post (for Instagram/FB/LinkedIn) that stands on its own.
5) CTA - a clear, specific call to action that feels natural and not pushy.
6) Script - a short-form video script (30-60 seconds), written as spoken dialogue.

Tone:
- Clear, confident, and empathetic.
- Specific to the niche and situation.
- Avoid generic fluff. Use concrete language and real-world phrasing.

Important:
- Do NOT explain what you are doing.
- Do NOT include numbering or labels in the output.
- Just output the six pieces of content, separated clearly with blank lines between them.
`

// Request describes the content to generate.
type Request struct {
	Trend   string `json:"trend" validate:"required"`
	Niche   string `json:"niche" validate:"required"`
	Persona string `json:"persona,omitempty"`
}

// Completer sends a prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator turns a trend and niche into a Copy using a language model.
type Generator struct {
	completer Completer
}

// NewGenerator creates a generator. A nil completer makes Generate fail with ErrNoCompleter.
func NewGenerator(c Completer) *Generator {
	return &Generator{completer: c}
}

// Enabled reports whether a language model is configured.
func (g *Generator) Enabled() bool {
	return g != nil && g.completer != nil
}

// Generate builds the prompt for req, calls the model and parses its reply.
func (g *Generator) Generate(ctx context.Context, req Request) (*Copy, error) {
	if !g.Enabled() {
		return nil, ErrNoCompleter
	}

	raw, err := g.completer.Complete(ctx, BuildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	c := ParseCopy(raw)
	return &c, nil
}

// BuildPrompt returns the model prompt for req.
func BuildPrompt(req Request) string {
	persona := "The target persona is a typical homeowner or decision-maker in this niche.\n"
	if p := strings.TrimSpace(req.Persona); p != "" {
		persona = fmt.Sprintf("The target persona is: %s.\n", p)
	}
	return fmt.Sprintf(promptTemplate, req.Niche, req.Trend, persona)
}

// ParseCopy splits a model reply into six blocks separated by blank lines:
// headline, thumbnail idea, hashtags, post, call to action and script.
// Missing blocks are left empty; extra blocks are appended to the script.
func ParseCopy(raw string) Copy {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var parts []string
	for _, p := range strings.Split(raw, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	for len(parts) < 6 {
		parts = append(parts, "")
	}

	return Copy{
		Headline:      parts[0],
		ThumbnailIdea: parts[1],
		Hashtags:      ParseHashtags(parts[2]),
		Post:          parts[3],
		CallToAction:  parts[4],
		Script30:      strings.Join(parts[5:], "\n\n"),
	}
}
