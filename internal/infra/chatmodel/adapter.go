package chatmodel

import (
	"encoding/json"
	"fmt"

	einoschema "github.com/cloudwego/eino/schema"
	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

// ToolSet holds the adapted function schemas for every discovered tool,
// derived once at registration time, plus the lazy argument validators
// used at invocation time.
type ToolSet struct {
	infos      []*einoschema.ToolInfo
	validators map[string]*jsonschema.Resolved
}

// NewToolSet adapts each tool definition into the model-facing function
// schema. A schema that fails to resolve for validation is reported and
// skipped for validation only; the tool stays callable.
func NewToolSet(tools []domain.ToolDefinition, logger *zap.Logger) *ToolSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("toolset")

	set := &ToolSet{
		infos:      make([]*einoschema.ToolInfo, 0, len(tools)),
		validators: make(map[string]*jsonschema.Resolved, len(tools)),
	}
	for _, tool := range tools {
		set.infos = append(set.infos, ToolInfo(tool))
		resolved, err := resolveSchema(tool.InputSchema)
		if err != nil {
			log.Warn("tool schema not usable for validation", zap.String("tool", tool.Name), zap.Error(err))
			continue
		}
		if resolved != nil {
			set.validators[tool.Name] = resolved
		}
	}
	return set
}

// Infos returns the adapted schemas in discovery order.
func (s *ToolSet) Infos() []*einoschema.ToolInfo {
	return s.infos
}

// Len reports the number of adapted tools.
func (s *ToolSet) Len() int {
	return len(s.infos)
}

// Validate checks an argument object against the tool's declared schema.
// Tools without a resolvable schema accept any arguments.
func (s *ToolSet) Validate(tool string, args map[string]any) error {
	resolved, ok := s.validators[tool]
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("arguments for %s: %w", tool, err)
	}
	return nil
}

// ToolInfo converts one tool definition into the model-facing function
// schema. Pure and deterministic.
func ToolInfo(tool domain.ToolDefinition) *einoschema.ToolInfo {
	return &einoschema.ToolInfo{
		Name:        tool.Name,
		Desc:        tool.Description,
		ParamsOneOf: einoschema.NewParamsOneOfByParams(ParameterInfos(tool.InputSchema)),
	}
}

// ParameterInfos interprets a loosely typed JSON Schema document as a
// parameter tree. Unknown or missing shapes degrade to an empty
// parameter map rather than failing.
func ParameterInfos(schemaDoc any) map[string]*einoschema.ParameterInfo {
	obj, ok := schemaDoc.(map[string]any)
	if !ok {
		return map[string]*einoschema.ParameterInfo{}
	}
	props, ok := obj["properties"].(map[string]any)
	if !ok {
		return map[string]*einoschema.ParameterInfo{}
	}
	required := requiredSet(obj["required"])

	params := make(map[string]*einoschema.ParameterInfo, len(props))
	for name, raw := range props {
		info := parameterInfo(raw)
		info.Required = required[name]
		params[name] = info
	}
	return params
}

func parameterInfo(raw any) *einoschema.ParameterInfo {
	prop, ok := raw.(map[string]any)
	if !ok {
		return &einoschema.ParameterInfo{Type: einoschema.String}
	}
	info := &einoschema.ParameterInfo{
		Type: dataType(prop["type"]),
	}
	if desc, ok := prop["description"].(string); ok {
		info.Desc = desc
	}
	switch info.Type {
	case einoschema.Array:
		if items, ok := prop["items"]; ok {
			info.ElemInfo = parameterInfo(items)
		} else {
			info.ElemInfo = &einoschema.ParameterInfo{Type: einoschema.String}
		}
	case einoschema.Object:
		sub := ParameterInfos(prop)
		if len(sub) > 0 {
			info.SubParams = sub
		}
	}
	if values, ok := prop["enum"].([]any); ok && info.Type == einoschema.String {
		for _, v := range values {
			if s, ok := v.(string); ok {
				info.Enum = append(info.Enum, s)
			}
		}
	}
	return info
}

func dataType(raw any) einoschema.DataType {
	name, _ := raw.(string)
	switch name {
	case "object":
		return einoschema.Object
	case "array":
		return einoschema.Array
	case "number":
		return einoschema.Number
	case "integer":
		return einoschema.Integer
	case "boolean":
		return einoschema.Boolean
	case "null":
		return einoschema.Null
	default:
		return einoschema.String
	}
}

func requiredSet(raw any) map[string]bool {
	values, ok := raw.([]any)
	if !ok {
		return map[string]bool{}
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if name, ok := v.(string); ok {
			set[name] = true
		}
	}
	return set
}

func resolveSchema(schemaDoc any) (*jsonschema.Resolved, error) {
	if schemaDoc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var js jsonschema.Schema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := js.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}
