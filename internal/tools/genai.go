package tools

import (
	"fmt"

	"google.golang.org/genai"
)

var schemaTypes = map[string]genai.Type{
	TypeString:  genai.TypeString,
	TypeInteger: genai.TypeInteger,
	TypeBoolean: genai.TypeBoolean,
}

// Declarations describes the registered tools to the realtime model.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.tools))
	for _, t := range r.tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		if len(t.Params) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(t.Params)),
			}
			for _, p := range t.Params {
				desc := p.Description
				if p.Default != nil && p.Default != "" {
					desc = fmt.Sprintf("%s Default: %v.", desc, p.Default)
				}
				schema.Properties[p.Name] = &genai.Schema{Type: schemaTypes[p.Type], Description: desc}
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			decl.Parameters = schema
		}
		decls = append(decls, decl)
	}
	return decls
}

// GenAITool bundles the declarations for a live session config.
func (r *Registry) GenAITool() *genai.Tool {
	return &genai.Tool{FunctionDeclarations: r.Declarations()}
}
