package api

// ModelDefinition is a registry entry as it appears in config (models.yaml / config.yaml).
type ModelDefinition struct {
	ID          string             `mapstructure:"id" yaml:"id" json:"id" validate:"required"`
	Name        string             `mapstructure:"name" yaml:"name" json:"name"`
	ProviderID  string             `mapstructure:"provider_id" yaml:"provider_id" json:"provider_id"`
	UpstreamID  string             `mapstructure:"upstream_id" yaml:"upstream_id" json:"upstream_id"`
	Description string             `mapstructure:"description" yaml:"description" json:"description" validate:"required"`
	Benchmarks  map[string]float64 `mapstructure:"benchmarks" yaml:"benchmarks" json:"benchmarks"`
	// Capability is "chat" or "image"; only chat models take part in routing.
	Capability    string `mapstructure:"capability" yaml:"capability" json:"capability"`
	ContextLength int    `mapstructure:"context_length" yaml:"context_length" json:"context_length"`
	Disabled      bool   `mapstructure:"disabled" yaml:"disabled" json:"disabled,omitempty"`
}

// Model is the public listing view of a registered model.
type Model struct {
	ID            string             `json:"id"`
	Object        string             `json:"object"`
	Name          string             `json:"name"`
	Provider      string             `json:"provider,omitempty"`
	Description   string             `json:"description"`
	Capability    string             `json:"capability"`
	ContextLength int                `json:"context_length,omitempty"`
	Benchmarks    map[string]float64 `json:"benchmarks,omitempty"`
	Normalized    map[string]float64 `json:"normalized_benchmarks,omitempty"`
	// Available is false when no provider for the model is registered.
	Available bool `json:"available"`
}

type ModelFilter struct {
	Provider   string
	ID         string
	Capability string
}
