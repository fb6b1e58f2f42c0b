package descriptor

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a descriptor override document.
//
//	providers:
//	  openai:
//	    base_url: https://proxy.internal/v1
//	    max_tokens: 64000
//	  local:
//	    family: openai
//	    base_url: http://localhost:8000/v1
type File struct {
	Providers map[string]Override `yaml:"providers"`
}

// Override carries optional fields; nil means "keep the base value".
type Override struct {
	Family       *Family                 `yaml:"family"`
	BaseURL      *string                 `yaml:"base_url"`
	Auth         *Auth                   `yaml:"auth"`
	Headers      map[string]string       `yaml:"headers"`
	Query        map[string]string       `yaml:"query"`
	Models       []string                `yaml:"models"`
	DefaultModel *string                 `yaml:"default_model"`
	Pricing      map[string]ModelPricing `yaml:"pricing"`

	SupportsStreaming    *bool   `yaml:"supports_streaming"`
	SupportsFunctions    *bool   `yaml:"supports_functions"`
	SupportsSystemPrompt *bool   `yaml:"supports_system_prompt"`
	MaxTokens            *int    `yaml:"max_tokens"`
	RequiresKey          *bool   `yaml:"requires_key"`
	FoldRoleMarkers      *bool   `yaml:"fold_role_markers"`
	Region               *string `yaml:"region"`
}

// LoadFile reads a YAML override document from disk.
func LoadFile(path string) (File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("resolve descriptors path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return File{}, fmt.Errorf("read descriptors file %q: %w", absPath, err)
	}

	return Parse(data)
}

func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse descriptors: %w", err)
	}
	return f, nil
}

// Merge applies every override onto base and returns a new map. Providers
// absent from base are created from their override and must name a family.
func Merge(base map[string]*Descriptor, f File) (map[string]*Descriptor, error) {
	out := make(map[string]*Descriptor, len(base)+len(f.Providers))
	for id, d := range base {
		out[id] = d.Clone()
	}

	for id, o := range f.Providers {
		d, ok := out[id]
		if !ok {
			if o.Family == nil {
				return nil, fmt.Errorf("provider %s: family is required for a new provider", id)
			}
			d = &Descriptor{
				ID:                   id,
				Auth:                 bearer,
				SupportsStreaming:    true,
				SupportsSystemPrompt: true,
				RequiresKey:          true,
			}
			out[id] = d
		}
		o.apply(d)
	}

	return out, nil
}

func (o Override) apply(d *Descriptor) {
	if o.Family != nil {
		d.Family = *o.Family
	}
	if o.BaseURL != nil {
		d.BaseURL = *o.BaseURL
	}
	if o.Auth != nil {
		d.Auth = *o.Auth
	}
	if o.Headers != nil {
		if d.Headers == nil {
			d.Headers = make(map[string]string, len(o.Headers))
		}
		for k, v := range o.Headers {
			d.Headers[k] = v
		}
	}
	if o.Query != nil {
		if d.Query == nil {
			d.Query = make(map[string]string, len(o.Query))
		}
		for k, v := range o.Query {
			d.Query[k] = v
		}
	}
	if o.Models != nil {
		d.Models = o.Models
	}
	if o.DefaultModel != nil {
		d.DefaultModel = *o.DefaultModel
	}
	if o.Pricing != nil {
		if d.Pricing == nil {
			d.Pricing = make(map[string]ModelPricing, len(o.Pricing))
		}
		for k, v := range o.Pricing {
			d.Pricing[k] = v
		}
	}
	if o.SupportsStreaming != nil {
		d.SupportsStreaming = *o.SupportsStreaming
	}
	if o.SupportsFunctions != nil {
		d.SupportsFunctions = *o.SupportsFunctions
	}
	if o.SupportsSystemPrompt != nil {
		d.SupportsSystemPrompt = *o.SupportsSystemPrompt
	}
	if o.MaxTokens != nil {
		d.MaxTokens = *o.MaxTokens
	}
	if o.RequiresKey != nil {
		d.RequiresKey = *o.RequiresKey
	}
	if o.FoldRoleMarkers != nil {
		d.FoldRoleMarkers = *o.FoldRoleMarkers
	}
	if o.Region != nil {
		d.Region = *o.Region
	}
}
