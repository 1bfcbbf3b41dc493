package threed

import "time"

// MeshyConfig configures the Meshy image-to-3D provider.
type MeshyConfig struct {
	APIKey        string        `json:"api_key" yaml:"api_key"`
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	EnablePBR     bool          `json:"enable_pbr" yaml:"enable_pbr"`
	ShouldRemesh  bool          `json:"should_remesh" yaml:"should_remesh"`
	ShouldTexture bool          `json:"should_texture" yaml:"should_texture"`
}

// DefaultMeshyConfig returns default Meshy config.
func DefaultMeshyConfig() MeshyConfig {
	return MeshyConfig{
		BaseURL:       "https://api.meshy.ai/openapi/v1",
		Timeout:       60 * time.Second,
		EnablePBR:     true,
		ShouldRemesh:  true,
		ShouldTexture: true,
	}
}
