package evaluation

import (
	"encoding/json"

	"github.com/vigia-lab/vigia/internal/db"
)

// Track identifies one of the three evaluation dimensions.
type Track int

const (
	TrackAmbiental Track = iota
	TrackSocial
	TrackEconomica
)

// Tracks returns all tracks in dispatch order.
func Tracks() []Track {
	return []Track{TrackAmbiental, TrackSocial, TrackEconomica}
}

func (t Track) String() string {
	switch t {
	case TrackAmbiental:
		return db.TrackAmbiental
	case TrackSocial:
		return db.TrackSocial
	case TrackEconomica:
		return db.TrackEconomica
	default:
		return "unknown"
	}
}

// Cuestionario returns the questionnaire subset stored for this track.
func (t Track) Cuestionario(s *db.Solicitud) string {
	switch t {
	case TrackAmbiental:
		return s.CuestionarioAmbiental
	case TrackSocial:
		return s.CuestionarioSocial
	case TrackEconomica:
		return s.CuestionarioEconomica
	default:
		return ""
	}
}

// Respuesta returns the final response stored for this track.
func (t Track) Respuesta(s *db.Solicitud) string {
	switch t {
	case TrackAmbiental:
		return s.RespuestaAmbiental
	case TrackSocial:
		return s.RespuestaSocial
	case TrackEconomica:
		return s.RespuestaEconomica
	default:
		return ""
	}
}

// Apply writes the track's outcome into its slots on the record.
func (t Track) Apply(s *db.Solicitud, log []json.RawMessage, respuesta, estado string) {
	switch t {
	case TrackAmbiental:
		s.EvaluacionAmbiental = log
		s.RespuestaAmbiental = respuesta
	case TrackSocial:
		s.EvaluacionSocial = log
		s.RespuestaSocial = respuesta
	case TrackEconomica:
		s.EvaluacionEconomica = log
		s.RespuestaEconomica = respuesta
	}
	if s.Estado == nil {
		s.Estado = db.NewTrackStates()
	}
	s.Estado[t.String()] = estado
}
