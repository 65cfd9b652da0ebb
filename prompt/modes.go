package prompt

import (
	"fmt"
	"log"
	"strings"
)

// Mode selects the synthesis behavior for a run. Unknown values fall
// back to ModeGeneralDoc rather than failing the run.
type Mode string

const (
	ModeGeneralDoc        Mode = "general_doc"
	ModeBugReport         Mode = "bug_report"
	ModeFeatureSpec       Mode = "feature_spec"
	ModeSceneDetection    Mode = "scene_detection"
	ModeViralClipGen      Mode = "viral_clip_gen"
	ModeSubtitleExtractor Mode = "subtitle_extractor"
	ModeCharacterTracker  Mode = "character_tracker"
)

// Definition describes one mode for discovery endpoints and synthesis.
type Definition struct {
	Mode        Mode   `json:"mode"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// SubtitleOnly runs transcription and SRT formatting only, no
	// frame analysis or synthesis.
	SubtitleOnly bool `json:"subtitle_only"`
	// ProducesClips makes the synthesis output a clip plan that the
	// pipeline then cuts from the source video.
	ProducesClips bool `json:"produces_clips"`
	template      string
}

var registry = map[Mode]Definition{
	ModeGeneralDoc: {
		Mode:        ModeGeneralDoc,
		Name:        "General Documentation",
		Description: "Step-by-step documentation of what happens in the recording.",
		template: `Write clear step-by-step documentation of the recorded session "{{title}}".
Use the transcript and frames to reconstruct what was done and why.
Structure: overview, numbered steps with timestamps, outcome.`,
	},
	ModeBugReport: {
		Mode:        ModeBugReport,
		Name:        "Bug Report",
		Description: "Reproduction steps, expected vs actual behavior, environment hints.",
		template: `Write a bug report from the recorded session "{{title}}".
Include: summary, steps to reproduce (numbered, with timestamps),
expected behavior, actual behavior, and any error messages visible
in the frames or mentioned in the transcript.`,
	},
	ModeFeatureSpec: {
		Mode:        ModeFeatureSpec,
		Name:        "Feature Specification",
		Description: "A feature spec derived from a recorded demo or walkthrough.",
		template: `Write a feature specification based on the recorded walkthrough "{{title}}".
Include: motivation, user-facing behavior, flows shown in the recording
(with timestamps), and open questions the recording leaves unanswered.`,
	},
	ModeSceneDetection: {
		Mode:        ModeSceneDetection,
		Name:        "Scene Detection",
		Description: "A timeline of distinct scenes with short descriptions.",
		template: `Segment the recording "{{title}}" into distinct scenes.
For each scene give start/end timestamps, a one-line title and a
two-sentence description of what happens.`,
	},
	ModeViralClipGen: {
		Mode:          ModeViralClipGen,
		Name:          "Viral Clip Generator",
		Description:   "Finds short, high-impact moments and plans clips around them.",
		ProducesClips: true,
		template: `Find the most engaging short moments in the recording "{{title}}".
Respond with ONLY a JSON object:
{"clips": [{"start_time": 12.0, "end_time": 35.0, "title": "hook", "description": "why this works", "format": "vertical"}]}
Rules: 3 to 5 clips, each 15-60 seconds, format is one of vertical, square, horizontal.`,
	},
	ModeSubtitleExtractor: {
		Mode:         ModeSubtitleExtractor,
		Name:         "Subtitle Extractor",
		Description:  "Transcribes the audio and emits an SRT subtitle file.",
		SubtitleOnly: true,
	},
	ModeCharacterTracker: {
		Mode:        ModeCharacterTracker,
		Name:        "Character Tracker",
		Description: "Tracks the people or characters on screen across the recording.",
		template: `Track every person or character that appears in the recording "{{title}}".
For each one: a name or consistent label, when they first appear,
the spans they are on screen (timestamps), and what they do.`,
	},
}

// order fixes the listing order for discovery endpoints.
var order = []Mode{
	ModeGeneralDoc, ModeBugReport, ModeFeatureSpec, ModeSceneDetection,
	ModeViralClipGen, ModeSubtitleExtractor, ModeCharacterTracker,
}

// Parse maps a raw mode string to a known mode, defaulting to
// general_doc for anything unrecognized.
func Parse(raw string) Mode {
	m := Mode(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := registry[m]; ok {
		return m
	}
	if raw != "" {
		log.Printf("prompt: unknown mode %q, using %s", raw, ModeGeneralDoc)
	}
	return ModeGeneralDoc
}

// Lookup returns the definition for a mode. The mode must come from
// Parse, so the lookup cannot miss.
func Lookup(m Mode) Definition {
	def, ok := registry[m]
	if !ok {
		return registry[ModeGeneralDoc]
	}
	return def
}

// All lists every mode definition in stable order.
func All() []Definition {
	defs := make([]Definition, 0, len(order))
	for _, m := range order {
		defs = append(defs, registry[m])
	}
	return defs
}

// Render expands the mode's template with the given values. Keys appear
// in templates as {{key}}. Missing keys render as empty strings.
func Render(m Mode, values map[string]string) string {
	def := Lookup(m)
	out := def.template
	for key, val := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", val)
	}
	// Clear any placeholder the caller did not supply.
	for strings.Contains(out, "{{") {
		start := strings.Index(out, "{{")
		end := strings.Index(out[start:], "}}")
		if end < 0 {
			break
		}
		out = out[:start] + out[start+end+2:]
	}
	return strings.TrimSpace(out)
}

// TaskContext summarizes the mode for the relevance analyzer so frame
// selection matches what synthesis will need.
func TaskContext(m Mode, title string) string {
	def := Lookup(m)
	return fmt.Sprintf("%s (%s): %s", def.Name, title, def.Description)
}
