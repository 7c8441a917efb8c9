package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsurePascalCase(t *testing.T) {
	assert.Equal(t, "Greet", EnsurePascalCase("greet"))
	assert.Equal(t, "UpdateSettings", EnsurePascalCase("update_settings"))
	assert.Equal(t, "UserID", EnsurePascalCase("user_id"))
	assert.Equal(t, "FetchURL", EnsurePascalCase("fetch_url"))
	assert.Equal(t, "AlreadyPascal", EnsurePascalCase("AlreadyPascal"))
	assert.Equal(t, "MixedCaseName", EnsurePascalCase("mixed_CASE_name"))
}

func TestEnsureSnakeCase(t *testing.T) {
	assert.Equal(t, "greet", EnsureSnakeCase("Greet"))
	assert.Equal(t, "update_settings", EnsureSnakeCase("UpdateSettings"))
	assert.Equal(t, "user_id", EnsureSnakeCase("UserID"))
	assert.Equal(t, "already_snake", EnsureSnakeCase("already_snake"))
}
