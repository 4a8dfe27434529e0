package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// Manifest is a YAML document listing actions to import:
//
//	actions:
//	  - name: deploy-staging
//	    type: webhook
//	    config:
//	      url: https://ci.example.com/hooks/deploy
//	      method: POST
type Manifest struct {
	Actions []ManifestAction `yaml:"actions"`
}

// ManifestAction is one entry of a Manifest. Config is decoded according to
// Type once the whole entry has been read.
type ManifestAction struct {
	Name        string           `yaml:"name"`
	Type        types.ActionType `yaml:"type"`
	Description string           `yaml:"description,omitempty"`
	ProjectID   *string          `yaml:"projectID,omitempty"`
	Enabled     *bool            `yaml:"enabled,omitempty"`
	Config      yaml.Node        `yaml:"config"`
}

var yamlDecoders = map[types.ActionType]func(*yaml.Node) (types.ActionConfig, error){
	types.ActionTypeScript: func(n *yaml.Node) (types.ActionConfig, error) {
		var c types.ScriptConfig
		err := n.Decode(&c)
		return c, err
	},
	types.ActionTypeWebhook: func(n *yaml.Node) (types.ActionConfig, error) {
		var c types.WebhookConfig
		err := n.Decode(&c)
		return c, err
	},
	types.ActionTypeWorkflow: func(n *yaml.Node) (types.ActionConfig, error) {
		var c types.WorkflowConfig
		err := n.Decode(&c)
		return c, err
	},
}

// ParseManifest reads a YAML manifest into create inputs. Entries are not
// validated beyond their config shape; Service.Import does that.
func ParseManifest(r io.Reader) ([]CreateInput, error) {
	var manifest Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	inputs := make([]CreateInput, 0, len(manifest.Actions))
	for i, entry := range manifest.Actions {
		decode, ok := yamlDecoders[entry.Type]
		if !ok {
			return nil, types.Errorf(types.CodeInvalidAction, "action %d (%s): unknown type %q", i+1, entry.Name, entry.Type)
		}
		var cfg types.ActionConfig
		if entry.Config.Kind != 0 {
			var err error
			if cfg, err = decode(&entry.Config); err != nil {
				return nil, types.Errorf(types.CodeInvalidAction, "action %d (%s): config: %v", i+1, entry.Name, err)
			}
		}
		inputs = append(inputs, CreateInput{
			ActionType:  entry.Type,
			Name:        entry.Name,
			Description: entry.Description,
			Config:      cfg,
			ProjectID:   entry.ProjectID,
			IsEnabled:   entry.Enabled,
		})
	}
	return inputs, nil
}
