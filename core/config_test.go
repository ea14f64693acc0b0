package core

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_documents(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENV", "TEST")

		conf := NewConfig()
		assert.Equal(t, defaultSlots(), conf.Documents.Slots)
		assert.Equal(t, defaultProfiles(), conf.Documents.Profiles)
		assert.Equal(t, int64(4*MiB), conf.Documents.Profiles["letter"].MaxSize)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("ENV", "TEST")
		t.Setenv("TEST_DOCUMENTS_SLOTS", `[
			{"id": "transcript", "name": "Transcript", "required": true, "profile": "general"},
			{"id": "essay", "name": "Essay", "profile": "letter"}
		]`)
		t.Setenv("TEST_DOCUMENTS_PROFILES", `{
			"general": {"types": ["pdf"], "maxSize": 1048576},
			"letter": {"types": ["pdf", "txt", "docx"], "maxSize": 2097152}
		}`)
		t.Setenv("TEST_DOCUMENTS_GENERALMAXSIZE", "3145728")

		conf := NewConfig()
		assert.Equal(t, []SlotConfig{
			{ID: "transcript", Name: "Transcript", Required: true, Profile: "general"},
			{ID: "essay", Name: "Essay", Profile: "letter"},
		}, conf.Documents.Slots)
		assert.Equal(t, map[string]UploadProfileConfig{
			"general": {Types: []string{"pdf"}, MaxSize: 3 * MiB},
			"letter":  {Types: []string{"pdf", "txt", "docx"}, MaxSize: 2 * MiB},
		}, conf.Documents.Profiles)
	})
}

func TestDocumentSettings(t *testing.T) {
	t.Run("structured values", func(t *testing.T) {
		v := viper.New()
		v.Set("documents.slots", []interface{}{
			map[string]interface{}{"id": "id-photo", "name": "ID Photo", "profile": "photo"},
		})
		v.Set("documents.profiles", map[string]interface{}{
			"photo": map[string]interface{}{"types": []string{"png", "jpg"}, "maxSize": 2 * MiB},
		})

		profiles, slots, err := documentSettings(v)
		require.NoError(t, err)
		assert.Equal(t, []SlotConfig{{ID: "id-photo", Name: "ID Photo", Profile: "photo"}}, slots)
		assert.Equal(t, map[string]UploadProfileConfig{
			"photo": {Types: []string{"png", "jpg"}, MaxSize: 2 * MiB},
		}, profiles)
	})

	t.Run("only slots set", func(t *testing.T) {
		v := viper.New()
		v.Set("documents.slots", `[{"id": "transcript", "name": "Transcript", "profile": "general"}]`)

		profiles, slots, err := documentSettings(v)
		require.NoError(t, err)
		assert.Len(t, slots, 1)
		assert.Equal(t, defaultProfiles(), profiles)
	})

	t.Run("malformed json", func(t *testing.T) {
		v := viper.New()
		v.Set("documents.slots", `[{"id": `)

		_, _, err := documentSettings(v)
		assert.Error(t, err)
	})
}
