package generation

import (
	"fmt"
	"strings"
)

// PromptParams carries everything one chunk's prompt needs.
type PromptParams struct {
	Chunk     string
	Position  int
	Total     int
	Language  string
	StoryType string
	Tone      string
}

const promptTemplate = `You are a video storyboard writer. Break the following script segment into scenes.

Script segment %d of %d:
---
%s
---

Language: %s
Story type: %s
Tone: %s

Respond with ONLY a JSON array, no prose and no markdown. Each element must have exactly these fields:
[
  {
    "title": "short scene title",
    "narration": "the narration text for this scene, in the script's language",
    "visual_description": "what the viewer sees, concrete and filmable",
    "mood": "one or two words",
    "estimated_duration": 8
  }
]

estimated_duration is in seconds. Cover the entire segment in order; do not invent content beyond it.`

// BuildScenePrompt renders the generation prompt for one chunk, embedding
// the structured-output contract the parser expects.
func BuildScenePrompt(p PromptParams) string {
	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf(promptTemplate,
		p.Position, p.Total,
		strings.TrimSpace(p.Chunk),
		lang,
		orDefault(p.StoryType, "general"),
		orDefault(p.Tone, "neutral"),
	)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
