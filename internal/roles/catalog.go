// Package roles holds the closed catalog of agent roles a Step can be
// assigned to, grounded on original_source/src/models/agent.py's
// PREDEFINED_ROLES/ROLE_MODEL_CONFIG tables.
package roles

import (
	"sort"
	"strings"
)

// Role is a role template: a system prompt, a preferred model id, and an
// allow-list of tools the Sub-Agent may invoke while playing this role.
type Role struct {
	Key            string
	DisplayName    string
	SystemPrompt   string
	PreferredModel string
	Temperature    float64
	Tools          []string
	// Critical resolves spec.md §9's open question on which roles count as
	// "critical" for the reviewer's skip_next override: when a critical
	// role's step is still below the quality threshold after its retries are
	// used up, the Quality-Gate Reviewer applies skip_next (its descendants
	// are skipped) instead of coercing the decision to continue.
	Critical bool
}

// Catalog is the closed set of roles a plan Step may name.
var Catalog = map[string]Role{
	"searcher": {
		Key:            "searcher",
		DisplayName:    "Searcher",
		SystemPrompt:   "You retrieve information efficiently and precisely. Build targeted queries, prefer authoritative sources, and return a structured summary of what you found with citations.",
		PreferredModel: "qwen3-max",
		Temperature:    0.3,
		Tools:          []string{"sandbox_browser", "http_get", "html_to_text", "extract_links"},
	},
	"researcher": {
		Key:            "researcher",
		DisplayName:    "Researcher",
		SystemPrompt:   "You perform deep research and analysis. Cross-reference sources, reason step by step, and flag uncertainty rather than guessing.",
		PreferredModel: "deepseek-r1",
		Temperature:    0.5,
		Tools:          []string{"sandbox_browser", "http_get", "html_to_text", "summarize"},
		Critical:       true,
	},
	"analyst": {
		Key:            "analyst",
		DisplayName:    "Analyst",
		SystemPrompt:   "You analyze data and structured content, identify patterns, and produce clear, well-reasoned conclusions.",
		PreferredModel: "glm-4.7",
		Temperature:    0.5,
		Tools:          []string{"csv_parse", "json_pretty", "regex_extract"},
	},
	"writer": {
		Key:            "writer",
		DisplayName:    "Writer",
		SystemPrompt:   "You write clear, well-structured prose suited to the requested output type. Match the requested tone and length.",
		PreferredModel: "glm-4.7",
		Temperature:    0.7,
		Tools:          []string{"summarize_chunked"},
	},
	"coder": {
		Key:            "coder",
		DisplayName:    "Coder",
		SystemPrompt:   "You write correct, idiomatic code. Prefer the standard library, handle errors explicitly, and keep functions small.",
		PreferredModel: "glm-4.7",
		Temperature:    0.1,
		Tools:          []string{"sandbox_code_interpreter", "file_extract"},
		Critical:       true,
	},
	"translator": {
		Key:            "translator",
		DisplayName:    "Translator",
		SystemPrompt:   "You translate text faithfully, preserving meaning, tone, and formatting. Flag idioms that don't translate cleanly.",
		PreferredModel: "kimi-k2.5",
		Temperature:    0.2,
		Tools:          []string{},
	},
	"fact_checker": {
		Key:            "fact_checker",
		DisplayName:    "Fact Checker",
		SystemPrompt:   "You verify claims against sources. For every claim, state whether it is supported, contradicted, or unverifiable, and cite your source.",
		PreferredModel: "deepseek-r1",
		Temperature:    0.2,
		Tools:          []string{"sandbox_browser", "http_get", "html_to_text"},
		Critical:       true,
	},
	"summarizer": {
		Key:            "summarizer",
		DisplayName:    "Summarizer",
		SystemPrompt:   "You condense long material into accurate, well-organized summaries without losing load-bearing detail.",
		PreferredModel: "kimi-k2.5",
		Temperature:    0.4,
		Tools:          []string{"summarize", "summarize_chunked"},
	},
	"creative": {
		Key:            "creative",
		DisplayName:    "Creative",
		SystemPrompt:   "You generate creative, original content suited to the brief: tone, audience, and format all matter.",
		PreferredModel: "glm-4.7",
		Temperature:    0.8,
		Tools:          []string{},
	},
	"image_analyst": {
		Key:            "image_analyst",
		DisplayName:    "Image Analyst",
		SystemPrompt:   "You interpret images and describe their content, layout, and any text precisely and concisely.",
		PreferredModel: "qwen3-vl-plus",
		Temperature:    0.2,
		Tools:          []string{"file_extract"},
	},
	"text_to_image": {
		Key:            "text_to_image",
		DisplayName:    "Text-to-Image",
		SystemPrompt:   "You turn a text brief into an image generation prompt capturing subject, composition, and style.",
		PreferredModel: "wanx2.1-t2i-turbo",
		Temperature:    0.7,
		Tools:          []string{},
	},
	"text_to_video": {
		Key:            "text_to_video",
		DisplayName:    "Text-to-Video",
		SystemPrompt:   "You turn a text brief into a video generation prompt capturing scene, motion, and pacing.",
		PreferredModel: "wanx2.1-t2v-turbo",
		Temperature:    0.7,
		Tools:          []string{},
	},
	"image_to_video": {
		Key:            "image_to_video",
		DisplayName:    "Image-to-Video",
		SystemPrompt:   "You turn a source image and a motion brief into an image-to-video generation prompt.",
		PreferredModel: "wanx2.1-i2v-turbo",
		Temperature:    0.7,
		Tools:          []string{},
	},
	"voice_synthesizer": {
		Key:            "voice_synthesizer",
		DisplayName:    "Voice Synthesizer",
		SystemPrompt:   "You turn a script into a voice synthesis prompt, noting pacing, emphasis, and tone cues.",
		PreferredModel: "cosyvoice-v1",
		Temperature:    0.5,
		Tools:          []string{},
	},
}

// defaultRole is returned by Resolve when no match, exact or fuzzy, is
// found — original_source's get_role_by_hint falls back to "researcher".
const defaultRole = "researcher"

// Resolve looks up a role by exact key, then falls back to substring
// matching on the key or display name, and finally to defaultRole. This
// mirrors get_role_by_hint so a malformed or loosely-worded plan step
// never hard-fails planning over a role-name typo.
func Resolve(hint string) Role {
	if r, ok := Catalog[hint]; ok {
		return r
	}

	lower := strings.ToLower(strings.TrimSpace(hint))
	if lower != "" {
		for key, r := range Catalog {
			if strings.Contains(lower, key) || strings.Contains(key, lower) {
				return r
			}
			displayLower := strings.ToLower(r.DisplayName)
			if strings.Contains(displayLower, lower) || strings.Contains(lower, displayLower) {
				return r
			}
		}
	}
	return Catalog[defaultRole]
}

// Get looks up a role by exact key only.
func Get(key string) (Role, bool) {
	r, ok := Catalog[key]
	return r, ok
}

// Keys returns the sorted list of catalog role keys, used by the Supervisor
// when prompting the planner model with the allowed roles.
func Keys() []string {
	keys := make([]string, 0, len(Catalog))
	for k := range Catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
