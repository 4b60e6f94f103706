package agent

// Role is the identity an agent speaks with. It is configuration data only;
// nothing in the package branches on a particular role.
type Role struct {
	Name         string `yaml:"name" json:"name"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

// Params are the generation parameters an agent sends with every request.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature *float64 // nil leaves the choice to the model route
}
