package notionkb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPropertiesFlatten_RoundTripsStringValues(t *testing.T) {
	payload := map[string]any{"name": "Acme Co", "summary": "a quick update"}
	props := toProperties(payload)
	out := flatten(props)

	assert.Equal(t, "Acme Co", out["name"])
	assert.Equal(t, "a quick update", out["summary"])
}

func TestToProperties_StringifiesNonStringValues(t *testing.T) {
	payload := map[string]any{"is_affiliate": false, "count": 3}
	props := toProperties(payload)
	out := flatten(props)

	assert.Equal(t, "false", out["is_affiliate"])
	assert.Equal(t, "3", out["count"])
}

// TestRecordFilter_EmailIDMatchesExactly asserts UpsertRecord's
// idempotency lookup filters on the real email_id property instead of
// silently becoming an unfiltered query that could match any row.
func TestRecordFilter_EmailIDMatchesExactly(t *testing.T) {
	f := recordFilter(map[string]any{"email_id": "email-42"})
	assert.NotNil(t, f)
	assert.Equal(t, "email_id", f.Property)
	assert.NotNil(t, f.RichText)
	assert.Equal(t, "email-42", f.RichText.Equals)
	assert.Empty(t, f.RichText.Contains)
}

func TestRecordFilter_NameFallsBackToContains(t *testing.T) {
	f := recordFilter(map[string]any{"name": "Acme"})
	assert.NotNil(t, f)
	assert.Equal(t, "name", f.Property)
	assert.Equal(t, "Acme", f.RichText.Contains)
}

func TestRecordFilter_EmailIDTakesPrecedenceOverName(t *testing.T) {
	f := recordFilter(map[string]any{"email_id": "email-42", "name": "Acme"})
	assert.Equal(t, "email_id", f.Property)
}

func TestRecordFilter_UnrecognizedKeysReturnNil(t *testing.T) {
	assert.Nil(t, recordFilter(map[string]any{"other": "value"}))
	assert.Nil(t, recordFilter(nil))
}
