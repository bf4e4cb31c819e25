package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

// defaultSceneDuration fills in when the model omits or mangles a duration.
const defaultSceneDuration = 8

// ParseScenes extracts an ordered scene list from raw model output. It
// strips surrounding code fences, tries a direct JSON parse, and falls back
// to the first balanced array embedded in the text. Anything less yields
// ErrUnparsableResponse.
func ParseScenes(raw string) ([]models.SceneData, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparsableResponse)
	}

	if scenes, err := decodeScenes(text); err == nil {
		return scenes, nil
	}

	if sub, ok := extractJSONArray(text); ok {
		if scenes, err := decodeScenes(sub); err == nil {
			return scenes, nil
		}
	}

	return nil, ErrUnparsableResponse
}

func decodeScenes(text string) ([]models.SceneData, error) {
	var scenes []models.SceneData
	if err := json.Unmarshal([]byte(text), &scenes); err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("empty scene list")
	}
	for i := range scenes {
		if strings.TrimSpace(scenes[i].Title) == "" || strings.TrimSpace(scenes[i].Narration) == "" {
			return nil, fmt.Errorf("scene %d missing title or narration", i+1)
		}
		if scenes[i].EstimatedDuration <= 0 {
			scenes[i].EstimatedDuration = defaultSceneDuration
		}
	}
	return scenes, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence if present.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// Drop the opening fence line, including any language tag.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		return strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// extractJSONArray returns the first balanced top-level [...] in text,
// tracking string literals and escapes so brackets inside values don't
// confuse the depth count.
func extractJSONArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}
