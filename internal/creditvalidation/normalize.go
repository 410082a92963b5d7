package creditvalidation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/validation"
)

// допустимые имена полей в порядке приоритета
var (
	identityFields = []string{model.FieldParticipantID, "id", "participant_code", "codigo", "cpf", "matricula", "employee_id", "seller_id"}
	nameFields     = []string{model.FieldParticipantName, "name", "nome", "seller_name", "vendedor"}
	amountFields   = []string{model.FieldAmount, model.FieldTotal, "value", "valor", "sales_amount"}
	dateFields     = []string{model.FieldDate, "sale_date", "data", "data_venda"}
)

var dateLayouts = []string{
	model.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"20060102",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
}

const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

type columns struct {
	identity string
	name     string
	amount   string
	date     string
}

func resolveColumns(mappings []model.ColumnMapping) columns {
	byField := make(map[string]string, len(mappings))
	for _, m := range mappings {
		field := normalizeField(m.MappedField)
		if _, ok := byField[field]; !ok && m.OriginalColumn != "" {
			byField[field] = m.OriginalColumn
		}
	}
	pick := func(candidates []string) string {
		for _, c := range candidates {
			if col, ok := byField[c]; ok {
				return col
			}
		}
		return ""
	}

	cols := columns{
		identity: pick(identityFields),
		name:     pick(nameFields),
		amount:   pick(amountFields),
		date:     pick(dateFields),
	}
	// без колонки идентификатора участник определяется по имени
	if cols.identity == "" {
		cols.identity = cols.name
	}
	return cols
}

func normalizeField(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	return strings.Join(strings.Fields(field), "_")
}

func Normalize(upload string, processed model.ProcessedData) (model.PartialData, []validation.Finding) {
	cols := resolveColumns(processed.ColumnMappings)

	batch := model.PartialData{
		UploadID:     upload,
		UploadType:   uploadType(processed.AuditType),
		Participants: make([]model.ParticipantData, 0, len(processed.Participants)),
	}
	var findings []validation.Finding

	for i, row := range processed.Participants {
		if blankRow(row) {
			continue
		}

		id := cellString(cell(row, cols.identity))
		name := cellString(cell(row, cols.name))
		if name == "" {
			name = id
		}

		var missing []string
		if id == "" {
			missing = append(missing, "identificador do participante")
		}
		amount, ok := parseAmount(cell(row, cols.amount))
		if !ok {
			missing = append(missing, "valor")
		}
		date, ok := parseDate(cell(row, cols.date))
		if !ok {
			missing = append(missing, "data")
		}

		if len(missing) > 0 {
			findings = append(findings, validation.Finding{
				Type:            model.DivergenceMissingField,
				ParticipantID:   id,
				ParticipantName: name,
				Message:         fmt.Sprintf("Linha %d: campo obrigatório ausente (%s)", i+1, strings.Join(missing, ", ")),
			})
			continue
		}

		batch.Participants = append(batch.Participants, model.ParticipantData{
			ParticipantID: id,
			Name:          name,
			Amount:        amount,
			Date:          date,
		})
	}

	return batch, findings
}

func uploadType(auditType string) model.UploadType {
	if strings.EqualFold(strings.TrimSpace(auditType), model.AuditTypeFinal) {
		return model.UploadTypeFinal
	}
	return model.UploadTypePartial
}

func cell(row map[string]any, column string) any {
	if column == "" {
		return nil
	}
	return row[column]
}

func blankRow(row map[string]any) bool {
	for _, v := range row {
		if cellString(v) != "" {
			return false
		}
	}
	return true
}

func cellString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case time.Time:
		return v.Format(model.DateLayout)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// группы тысяч: "1.500", "2.000.000", "1,500"
var (
	dotThousands   = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)
	commaThousands = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+$`)
)

func parseAmount(v any) (decimal.Decimal, bool) {
	switch v := v.(type) {
	case nil:
		return decimal.Zero, false
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	}

	s := cellString(v)
	s = strings.NewReplacer("R$", "", "$", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return decimal.Zero, false
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case commaThousands.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case dotThousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseDate(v any) (time.Time, bool) {
	switch v := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return model.Day(v), !v.IsZero()
	case float64:
		return excelSerial(v)
	case int:
		return excelSerial(float64(v))
	case int64:
		return excelSerial(float64(v))
	}

	s := cellString(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return excelSerial(f)
	}
	return time.Time{}, false
}

func excelSerial(f float64) (time.Time, bool) {
	if f < minExcelSerial || f > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return model.Day(t), true
}
