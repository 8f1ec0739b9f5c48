package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGroupSchema(t *testing.T) {
	for _, group := range groups {
		t.Run(group.Name, func(t *testing.T) {
			schema := generateGroupSchema(group)
			defs, ok := schema["$defs"].(map[string]any)
			require.True(t, ok)
			assert.NotEmpty(t, defs)
		})
	}

	schema := generateGroupSchema(groups[0])
	defs := schema["$defs"].(map[string]any)
	for _, name := range []string{"MessageRequest", "InvokeResponse", "Update", "Message"} {
		assert.Contains(t, defs, name)
	}
}

func TestWriteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, writeSchema(generateGroupSchema(groups[1]), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "Botte Tasks Types", parsed["title"])
	assert.Contains(t, parsed["$defs"], "DynamoDBEventRecord")
}
