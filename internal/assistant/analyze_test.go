package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigia-lab/vigia/internal/db"
)

func TestAnalyzeSolicitud(t *testing.T) {
	var payload struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"choices":[{"message":{"content":"Riesgos bajos, proveedor recomendado."}}]}`))
	})

	sol := db.NewSolicitud("PRJ-001", "Acme SAS", "900123456", "jramirez")
	sol.RespuestaAmbiental = "Cumple normativa ambiental."

	analisis, err := client.AnalyzeSolicitud(context.Background(), sol)
	require.NoError(t, err)
	assert.Equal(t, "Riesgos bajos, proveedor recomendado.", analisis)

	assert.Equal(t, "gpt-4-turbo", payload.Model)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "system", payload.Messages[0].Role)
	assert.Contains(t, payload.Messages[1].Content, "Cumple normativa ambiental.")
	// Missing track responses get a placeholder, not an empty slot.
	assert.Contains(t, payload.Messages[1].Content, "Sin evaluación")
}

func TestAnalyzeSolicitudEmptyChoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	sol := db.NewSolicitud("PRJ-001", "Acme SAS", "900123456", "jramirez")
	_, err := client.AnalyzeSolicitud(context.Background(), sol)
	require.Error(t, err)
}
