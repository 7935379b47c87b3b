package config

import (
	"encoding/json"
	"os"

	"github.com/docscout/docscout/internal/errors"
)

// preset is a full or partial config file merged over the base.
// Only non-zero fields override; repositories merge by name.
type preset struct {
	Repositories      []Repository       `json:"repositories,omitempty"`
	ContextGeneration *ContextGeneration `json:"contextGeneration,omitempty"`
	Server            *Server            `json:"server,omitempty"`
	VectorStore       *VectorStore       `json:"vectorStore,omitempty"`
	Embeddings        *Embeddings        `json:"embeddings,omitempty"`
}

// ApplyPreset merges a preset file over the config.
// Repositories are matched by name: existing entries are replaced, new ones
// appended. Section overrides replace the whole section.
func (c *Config) ApplyPreset(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "cannot read preset "+path)
	}

	var p preset
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrap(err, errors.KindValidation, "malformed preset JSON")
	}

	for _, repo := range p.Repositories {
		replaced := false
		for i := range c.Repositories {
			if c.Repositories[i].Name == repo.Name {
				c.Repositories[i] = repo
				replaced = true
				break
			}
		}
		if !replaced {
			c.Repositories = append(c.Repositories, repo)
		}
	}

	if p.ContextGeneration != nil {
		c.ContextGeneration = *p.ContextGeneration
	}
	if p.Server != nil {
		c.Server = *p.Server
	}
	if p.VectorStore != nil {
		c.VectorStore = *p.VectorStore
	}
	if p.Embeddings != nil {
		c.Embeddings = *p.Embeddings
	}

	c.applyDefaults()
	return c.Validate()
}
