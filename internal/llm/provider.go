package llm

import (
	"context"
	"encoding/json"
)

// Provider es la abstraccion comun sobre los distintos proveedores de LLM.
type Provider interface {
	// Generate envia el prompt y devuelve la respuesta. Si Request.Schema
	// esta presente, Content es JSON ya validado contra el schema.
	Generate(ctx context.Context, req Request) (*Response, error)

	ModelID() string
}

// Embedder convierte texto en un vector para busqueda semantica.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Request struct {
	System   string
	Messages []Message
	// Schema activa la salida estructurada nativa del proveedor.
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema describe el JSON esperado. Name se usa como clave de cache del
// schema compilado, por lo que debe ser unico por definicion.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string
	StopReason string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Text devuelve el contenido como texto plano.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Content)
}
