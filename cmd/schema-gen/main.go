// Schema Generator
//
// Generates JSON Schema files from the Go types exchanged with Botte: the API
// bodies and the task stream records. Senders in other languages validate
// against them.
//
// Usage:
//
//	go run ./cmd/schema-gen
//
// Output:
//
//	schemas/api.json
//	schemas/tasks.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/botte/botte-service/internal/handlers"
	"github.com/botte/botte-service/internal/relay"
	"github.com/botte/botte-service/internal/tasks"
	"github.com/botte/botte-service/internal/telegram"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

var groups = []SchemaGroup{
	{
		Name: "api",
		Types: []any{
			handlers.MessageRequest{},
			handlers.ErrorResponse{},
			handlers.HealthResponse{},
			handlers.StreamResponse{},
			handlers.WebhookResponse{},
			relay.InvokeResponse{},
			telegram.Update{},
		},
		Output: "api.json",
	},
	{
		Name: "tasks",
		Types: []any{
			tasks.Event{},
			tasks.Record{},
		},
		Output: "tasks.json",
	},
}

func main() {
	outputDir := "schemas"

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range groups {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range group.Types {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://botte.dev/schemas/%s.json", group.Name),
		"title":       fmt.Sprintf("Botte %s Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for Botte %s types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
