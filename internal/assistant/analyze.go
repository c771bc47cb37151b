package assistant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vigia-lab/vigia/internal/db"
)

const defaultAnalysisModel = "gpt-4-turbo"

// AnalyzeSolicitud asks the chat-completions endpoint for a consolidated
// analysis of a finished record: risks, opportunities and recommendations
// across the three evaluations.
func (c *Client) AnalyzeSolicitud(ctx context.Context, s *db.Solicitud) (string, error) {
	prompt := fmt.Sprintf(
		"Analiza detalladamente la siguiente solicitud y sus resultados de evaluación.\n"+
			"Proyecto: %s\n"+
			"Proveedor: %s (NIT: %s)\n"+
			"Estado General: %s\n"+
			"Evaluación Ambiental: %s\n"+
			"Evaluación Social: %s\n"+
			"Evaluación Económica: %s\n"+
			"Cuestionario: %s\n"+
			"Por favor, realiza un análisis integral, identifica riesgos, oportunidades y recomendaciones para el proyecto.",
		s.CodigoProyecto, s.ProveedorNombre, s.ProveedorNIT, s.EstadoGeneral,
		evaluationText(s.RespuestaAmbiental),
		evaluationText(s.RespuestaSocial),
		evaluationText(s.RespuestaEconomica),
		s.Cuestionario,
	)

	payload := map[string]interface{}{
		"model": c.analysisModel,
		"messages": []map[string]string{
			{"role": "system", "content": "Eres un experto en análisis de proyectos."},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  512,
		"temperature": 0.7,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.doJSON(ctx, "analyze solicitud", http.MethodPost, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("analyze solicitud: empty choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

func evaluationText(respuesta string) string {
	if respuesta == "" {
		return "Sin evaluación"
	}
	return respuesta
}
