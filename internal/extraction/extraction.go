package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iurnickita/cashback/internal/model"
)

// синонимы в нормализованном виде
var exactNames = map[string][]string{
	model.FieldParticipantID:   {"codigo", "cod", "codigo vendedor", "cod vendedor", "id", "id vendedor", "participant id", "matricula", "cpf", "registro"},
	model.FieldParticipantName: {"vendedor", "nome", "nome vendedor", "participante", "colaborador", "name", "participant name", "seller"},
	model.FieldAmount:          {"valor", "valor venda", "valor vendas", "valor total", "total", "amount", "faturamento", "vendas"},
	model.FieldDate:            {"data", "data venda", "data da venda", "dt venda", "date", "dia", "sale date"},
}

// ключевые слова в порядке приоритета
var keywords = []struct {
	field string
	words []string
}{
	{field: model.FieldParticipantID, words: []string{"codigo", "cod", "matricula", "cpf", "id"}},
	{field: model.FieldDate, words: []string{"data", "date", "dt"}},
	{field: model.FieldAmount, words: []string{"valor", "total", "amount", "faturamento"}},
	{field: model.FieldParticipantName, words: []string{"vendedor", "nome", "participante", "colaborador", "name"}},
}

// Heuristic: каждое поле и каждая колонка используются не более одного раза
func Heuristic(header []string) []model.ColumnMapping {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = Normalize(h)
	}

	fields := make(map[int]string)
	assigned := make(map[string]bool)
	assign := func(field string, i int) {
		if assigned[field] || fields[i] != "" || header[i] == "" {
			return
		}
		assigned[field] = true
		fields[i] = field
	}

	for i, h := range normalized {
		for field, names := range exactNames {
			for _, name := range names {
				if h == name {
					assign(field, i)
				}
			}
		}
	}
	for _, kw := range keywords {
		for i, h := range normalized {
			if hasWord(h, kw.words) {
				assign(kw.field, i)
			}
		}
	}

	mappings := make([]model.ColumnMapping, 0, len(fields))
	for i, h := range header {
		if field := fields[i]; field != "" {
			mappings = append(mappings, model.ColumnMapping{OriginalColumn: h, MappedField: field})
		}
	}
	return mappings
}

func Processed(fileName string, auditType string, records []map[string]any, mappings []model.ColumnMapping) model.ProcessedData {
	if records == nil {
		records = []map[string]any{}
	}
	return model.ProcessedData{
		FileName:       fileName,
		Participants:   records,
		ColumnMappings: mappings,
		AuditType:      auditType,
	}
}

func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

func hasWord(s string, words []string) bool {
	for _, field := range strings.Fields(s) {
		for _, w := range words {
			if field == w {
				return true
			}
		}
	}
	return false
}
