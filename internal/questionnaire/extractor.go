package questionnaire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName      = "Cuestionario"
	skippedRows    = 3
	maxColumns     = 16
	dimensionField = "dimensión"
)

// ErrSheetNotFound is returned when the workbook has no questionnaire sheet.
var ErrSheetNotFound = errors.New("sheet Cuestionario not found")

// Long-form headers are shortened to stable field names.
var renamedHeaders = map[string]string{
	"calificación_asigne_en_la_columna_el_puntaje_de_la_respuesta_que_más_se_ajusta_a_la_realidad_de_tu_empresa.":                                        "calificacion_por_proveedor",
	"soportes_aplicables_para_justificar_respuesta_estos_son_algunos_ejemplos_de_los_soportes_que_puedes_anexar_para_comprobar_la_respuesta_seleccionada.": "soportes",
	"justificación_explica_brevemente_lo_que_la_empresa_realiza_acorde_a_la_respuesta_seleccionada.":                                                      "justificacion_por_proveedor",
}

// Scoring columns are internal to the workbook and never forwarded.
var excludedHeaders = map[string]struct{}{
	"opciones_de_respuesta":   {},
	"puntaje_respuesta":       {},
	"peso_criterio":           {},
	"puntaje_del_criterio":    {},
	"puntaje_de_la_dimensión": {},
	"peso_dimensión":          {},
	"puntaje_final":           {},
}

// DimensionBlock groups questionnaire rows that share a dimension label.
type DimensionBlock struct {
	Dimension string              `json:"dimension"`
	Items     []map[string]string `json:"items"`
}

// Extract parses the questionnaire sheet of an xlsx workbook into
// dimension blocks, preserving first-seen dimension order.
func Extract(r io.Reader) ([]DimensionBlock, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		var sheetErr excelize.ErrSheetNotExist
		if errors.As(err, &sheetErr) {
			return nil, ErrSheetNotFound
		}
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	// The first three rows are title material; the fourth carries the
	// column names and data starts on the fifth.
	if len(rows) <= skippedRows+1 {
		return nil, nil
	}

	headers := normalizeHeaders(rows[skippedRows])

	var blocks []DimensionBlock
	index := make(map[string]int)

	for _, row := range rows[skippedRows+1:] {
		item := make(map[string]string)
		dimension := ""
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(row) {
				value = strings.ReplaceAll(row[i], "\n", " ")
				value = strings.ReplaceAll(value, "\r", " ")
				value = strings.TrimSpace(value)
			}
			if header == dimensionField {
				dimension = value
				continue
			}
			if _, skip := excludedHeaders[header]; skip {
				continue
			}
			item[header] = value
		}
		if len(item) == 0 {
			continue
		}
		if dimension == "" {
			dimension = "Sin dimensión"
		}

		pos, ok := index[dimension]
		if !ok {
			pos = len(blocks)
			index[dimension] = pos
			blocks = append(blocks, DimensionBlock{Dimension: dimension})
		}
		blocks[pos].Items = append(blocks[pos].Items, item)
	}

	return blocks, nil
}

// FilterDimension keeps the blocks whose dimension label contains any of
// the given keywords, case-insensitively.
func FilterDimension(blocks []DimensionBlock, keywords ...string) []DimensionBlock {
	var out []DimensionBlock
	for _, block := range blocks {
		label := strings.ToLower(block.Dimension)
		for _, kw := range keywords {
			if strings.Contains(label, strings.ToLower(kw)) {
				out = append(out, block)
				break
			}
		}
	}
	return out
}

// ToJSON serializes blocks for inclusion in assistant instructions.
func ToJSON(blocks []DimensionBlock) (string, error) {
	if blocks == nil {
		blocks = []DimensionBlock{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal questionnaire: %w", err)
	}
	return string(data), nil
}

func normalizeHeaders(row []string) []string {
	headers := make([]string, 0, maxColumns)
	for i, cell := range row {
		if i >= maxColumns {
			break
		}
		h := strings.ReplaceAll(cell, "\n", " ")
		h = strings.ReplaceAll(h, "\r", " ")
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.Join(strings.Fields(h), "_")
		if renamed, ok := renamedHeaders[h]; ok {
			h = renamed
		}
		headers = append(headers, h)
	}
	return headers
}
