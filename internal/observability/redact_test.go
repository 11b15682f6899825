package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_RedactsSensitiveKeys(t *testing.T) {
	input := map[string]any{
		"username": "alice",
		"password": "hunter2",
		"api_key":  "abc123",
	}

	result := Sanitize(input)

	assert.Equal(t, "alice", result["username"])
	assert.Equal(t, RedactionMarker, result["password"])
	assert.Equal(t, RedactionMarker, result["api_key"])
}

func TestSanitize_MatchesCaseInsensitiveSubstrings(t *testing.T) {
	input := map[string]any{
		"Authorization":  "Bearer xyz",
		"user_password":  "secret1",
		"ACCESS_TOKEN":   "tok",
		"session_cookie": "sid=1",
		"client_secret":  "s3cr3t",
	}

	result := Sanitize(input)

	for key := range input {
		assert.Equal(t, RedactionMarker, result[key], "key %q should be redacted", key)
	}
}

func TestSanitize_WalksNestedStructures(t *testing.T) {
	input := map[string]any{
		"user": map[string]any{
			"name":     "bob",
			"password": "pw",
			"settings": map[string]any{
				"theme":     "dark",
				"api_token": "t",
			},
		},
		"items": []any{
			map[string]any{"id": 1, "secret": "x"},
			"plain string",
		},
	}

	result := Sanitize(input)

	user := result["user"].(map[string]any)
	assert.Equal(t, "bob", user["name"])
	assert.Equal(t, RedactionMarker, user["password"])

	settings := user["settings"].(map[string]any)
	assert.Equal(t, "dark", settings["theme"])
	assert.Equal(t, RedactionMarker, settings["api_token"])

	items := result["items"].([]any)
	first := items[0].(map[string]any)
	assert.Equal(t, 1, first["id"])
	assert.Equal(t, RedactionMarker, first["secret"])
	assert.Equal(t, "plain string", items[1])
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	nested := map[string]any{"password": "pw"}
	input := map[string]any{"user": nested, "token": "t"}

	Sanitize(input)

	assert.Equal(t, "pw", nested["password"])
	assert.Equal(t, "t", input["token"])
}

func TestSanitize_NilMap(t *testing.T) {
	assert.Nil(t, Sanitize(nil))
}

func TestSanitizeValue_PassesScalarsThrough(t *testing.T) {
	assert.Equal(t, 42, SanitizeValue(42))
	assert.Equal(t, "hello", SanitizeValue("hello"))
	assert.Equal(t, true, SanitizeValue(true))
	assert.Nil(t, SanitizeValue(nil))
}
