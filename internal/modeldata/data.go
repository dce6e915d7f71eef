package modeldata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// Catalogue is the static model data the router loads at startup.
// Benchmark keys are case sensitive, which is why this lives in its own YAML
// file instead of the viper-managed config.
type Catalogue struct {
	Ceilings map[string]float64    `yaml:"ceilings"`
	Models   []api.ModelDefinition `yaml:"models"`
}

var DefaultCeilings = map[string]float64(routing.DefaultCeilings())

// KnownModels is the built-in catalogue. Order is the ranking tie-break order.
// A 0.0 benchmark means the score was not published.
var KnownModels = []api.ModelDefinition{
	// OpenAI
	{
		ID:            "gpt-4o",
		Name:          "GPT-4o",
		ProviderID:    "openai",
		Description:   "GPT-4o is OpenAI's flagship multimodal model with strong reasoning, coding and multilingual ability. It is fast and broadly capable across knowledge tasks.",
		ContextLength: 128000,
		Benchmarks:    map[string]float64{"MMLU": 0.887, "GPQA": 0.536, "HumanEval": 0.902, "MATH": 0.766, "BFCL": 0.0, "MGSM": 0.905},
	},
	{
		ID:            "gpt-4o-mini",
		Name:          "GPT-4o mini",
		ProviderID:    "openai",
		Description:   "GPT-4o mini is a small, cheap and fast model for everyday questions and summarization. It trades some reasoning depth for latency.",
		ContextLength: 128000,
		Benchmarks:    map[string]float64{"MMLU": 0.82, "GPQA": 0.402, "HumanEval": 0.872, "MATH": 0.702, "MGSM": 0.87},
	},
	{
		ID:            "gpt-3.5-turbo",
		Name:          "GPT-3.5 Turbo",
		ProviderID:    "openai",
		Description:   "OpenAI's fast and efficient model with good capabilities for simple chat. Weaker at multi-step reasoning.",
		ContextLength: 16385,
		Benchmarks:    map[string]float64{"MMLU": 0.70, "GPQA": 0.308, "HumanEval": 0.681, "MATH": 0.431},
	},

	// Anthropic
	{
		ID:            "claude-3-5-sonnet",
		Name:          "Claude 3.5 Sonnet",
		ProviderID:    "anthropic",
		UpstreamID:    "claude-3-5-sonnet-20240620",
		Description:   "Anthropic's balanced model for performance and efficiency, excellent at code generation, debugging and careful analysis. Strong tool use and long-context reading.",
		ContextLength: 200000,
		Benchmarks:    map[string]float64{"MMLU": 0.887, "GPQA": 0.594, "HumanEval": 0.92, "MATH": 0.711, "BFCL": 0.902, "MGSM": 0.916},
	},
	{
		ID:            "claude-3-opus",
		Name:          "Claude 3 Opus",
		ProviderID:    "anthropic",
		UpstreamID:    "claude-3-opus-20240229",
		Description:   "Anthropic's most capable model for highly complex tasks, deep research questions and nuanced writing. Slower and more expensive.",
		ContextLength: 200000,
		Benchmarks:    map[string]float64{"MMLU": 0.868, "GPQA": 0.504, "HumanEval": 0.849, "MATH": 0.601, "BFCL": 0.0, "MGSM": 0.907},
	},

	// Google
	{
		ID:            "gemini-1.5-pro",
		Name:          "Gemini 1.5 Pro",
		ProviderID:    "google",
		Description:   "Google's long-context multimodal model, good at multilingual understanding, translation and document question answering. Handles very large inputs.",
		ContextLength: 2000000,
		Benchmarks:    map[string]float64{"MMLU": 0.859, "GPQA": 0.461, "HumanEval": 0.841, "MATH": 0.677, "MGSM": 0.875},
	},

	// DeepSeek (OpenAI-compatible)
	{
		ID:            "deepseek-chat",
		Name:          "DeepSeek Chat",
		ProviderID:    "deepseek",
		Description:   "DeepSeek's general chat model with strong mathematics and programming skills at a low price. Good at algorithmic problems.",
		ContextLength: 64000,
		Benchmarks:    map[string]float64{"MMLU": 0.885, "GPQA": 0.591, "HumanEval": 0.826, "MATH": 0.90},
	},

	// Local
	{
		ID:            "llama3.1",
		Name:          "Llama 3.1 8B",
		ProviderID:    "ollama",
		UpstreamID:    "llama3.1:8b",
		Description:   "Meta's open-weight model served locally, suitable for function calling and simple tool execution. Limited world knowledge.",
		ContextLength: 128000,
		Benchmarks:    map[string]float64{"MMLU": 0.694, "GPQA": 0.304, "HumanEval": 0.726, "MATH": 0.519, "BFCL": 0.761, "MGSM": 0.689},
	},

	// Image generation, served by /v1/images/generations only
	{
		ID:          "dall-e-3",
		Name:        "DALL-E 3",
		ProviderID:  "openai",
		Capability:  "image",
		Description: "OpenAI's most advanced image generation model. Follows detailed prompts and renders legible text.",
	},
	{
		ID:          "dall-e-2",
		Name:        "DALL-E 2",
		ProviderID:  "openai",
		Capability:  "image",
		Description: "OpenAI's efficient image generation model. Cheaper and able to return several images per call.",
	},
	{
		ID:          "flux-pro-1.1",
		Name:        "FLUX1.1 [pro]",
		ProviderID:  "bfl",
		Capability:  "image",
		Description: "Black Forest Labs' fast, high quality text-to-image model with strong prompt adherence.",
	},
}

// Default returns a copy of the built-in catalogue.
func Default() Catalogue {
	c := Catalogue{
		Ceilings: make(map[string]float64, len(DefaultCeilings)),
		Models:   make([]api.ModelDefinition, len(KnownModels)),
	}
	for k, v := range DefaultCeilings {
		c.Ceilings[k] = v
	}
	copy(c.Models, KnownModels)
	return c
}

// Load reads a catalogue file. An empty path returns the built-in catalogue.
// Ceilings missing from the file fall back to DefaultCeilings.
func Load(path string) (Catalogue, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("read model catalogue: %w", err)
	}

	var c Catalogue
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse model catalogue %s: %w", path, err)
	}

	if c.Ceilings == nil {
		c.Ceilings = make(map[string]float64, len(DefaultCeilings))
	}
	for k, v := range DefaultCeilings {
		if _, ok := c.Ceilings[k]; !ok {
			c.Ceilings[k] = v
		}
	}
	return c, nil
}

// Images returns the enabled image models in catalogue order.
func (c Catalogue) Images() []api.ModelDefinition {
	var out []api.ModelDefinition
	for _, m := range c.Models {
		if m.Capability == api.CapabilityImage && !m.Disabled {
			out = append(out, m)
		}
	}
	return out
}

// Lookup returns the definition for id.
func (c Catalogue) Lookup(id string) (api.ModelDefinition, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return api.ModelDefinition{}, false
}
