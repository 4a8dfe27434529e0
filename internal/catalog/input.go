package catalog

import (
	"encoding/json"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// UnmarshalJSON decodes a create request, selecting the config variant by
// the actionType field.
func (in *CreateInput) UnmarshalJSON(data []byte) error {
	type alias CreateInput
	aux := struct {
		*alias
		Config json.RawMessage `json:"config"`
	}{alias: (*alias)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if !in.ActionType.Valid() {
		return types.Errorf(types.CodeInvalidAction, "unknown action type %q", in.ActionType)
	}
	cfg, err := types.DecodeConfig(in.ActionType, aux.Config)
	if err != nil {
		return err
	}
	in.Config = cfg
	return nil
}
