package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AssetSystemPrompt frames every generation request. The model returns a small JSON
// document the front-end turns into a sprite or a banner.
const AssetSystemPrompt = `You design pixel art for "Tower Madness", a game about an elevator operator in a startup tower that is falling apart.

Answer with JSON only, in exactly this shape:

{
  "title": "short caption, at most 6 words",
  "tagline": "one playful sentence shown under the sprite or banner",
  "palette": ["#rrggbb", "... 3 to 6 colours"],
  "pixels": ["rows of a small sprite; '.' is transparent, digits index the palette"]
}

Keep it friendly. Never mention real companies or people beyond the names you are given.`

// guestLooks are the known residents; a sprite request for one of them gets the
// look added to the prompt.
var guestLooks = map[string]string{
	"John the Doorman": "older distinguished gentleman doorman, friendly smile, blue uniform with gold badge, doorman cap",
	"Scott":            "long-haired middle-aged musician, headphones, purple shirt, relaxed vibe",
	"Tony":             "tall maker with big smile, safety goggles on head, blue work shirt, tool belt",
	"Xeno":             "short Greek manager who saves the day, glasses, spiky black hair, calming smile",
	"Vitalia":          "health expert, green medical scrubs, stethoscope, warm smile",
	"Vitaly":           "construction worker, yellow hard hat, brown work clothes, strong build",
	"Xenia":            "creative artist, colourful attire, beret, paint-splattered apron",
	"Cindy":            "engineer with safety vest, clipboard, orange hard hat",
	"Laurence":         "distinguished investor, dark green business suit, glasses, briefcase",
}

// BuildAssetPrompt creates the messages for one asset request.
func BuildAssetPrompt(key, description, style string) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Asset key: %s\n", key)
	fmt.Fprintf(&b, "Style: %s\n", style)
	fmt.Fprintf(&b, "Subject: %s\n", description)

	kind, name, _ := strings.Cut(key, ":")
	switch kind {
	case "sprite":
		if look, ok := guestLooks[name]; ok {
			fmt.Fprintf(&b, "Look: %s\n", look)
		}
		b.WriteString("Size: 10x14 pixels, character facing the viewer.\n")
	case "disaster":
		b.WriteString("Size: 32x8 pixels, a warning banner that reads well when blinking.\n")
	}

	return []Message{
		{Role: "system", Content: AssetSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// AssetContent is the parsed model answer.
type AssetContent struct {
	Title   string   `json:"title"`
	Tagline string   `json:"tagline"`
	Palette []string `json:"palette"`
	Pixels  []string `json:"pixels"`
}

// ParseAssetContent parses the JSON answer. Models sometimes wrap it in a markdown
// fence or chat around it, so only the outermost object is read.
func ParseAssetContent(raw string) (*AssetContent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var c AssetContent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &c); err != nil {
		return nil, fmt.Errorf("failed to parse asset JSON: %w", err)
	}
	if c.Title == "" && c.Tagline == "" {
		return nil, fmt.Errorf("asset has neither title nor tagline")
	}
	for _, col := range c.Palette {
		if len(col) != 7 || col[0] != '#' {
			return nil, fmt.Errorf("bad palette colour %q", col)
		}
	}
	return &c, nil
}
