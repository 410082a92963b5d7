package validation

import (
	"fmt"

	"github.com/iurnickita/cashback/internal/model"
)

// Values: сумма пары (участник, дата) неизменна, сравнение точное
func Values(batch model.PartialData, history []model.PartialData) Result {
	if len(history) == 0 {
		return valid()
	}

	// при повторе ключа в истории побеждает последнее значение
	previous := make(map[string]model.ParticipantData)
	for _, partial := range history {
		for _, p := range partial.Participants {
			previous[valueKey(p)] = p
		}
	}

	var findings []Finding
	for _, p := range batch.Participants {
		old, ok := previous[valueKey(p)]
		if !ok || old.Amount.Equal(p.Amount) {
			continue
		}
		direction := "aumentou"
		if p.Amount.LessThan(old.Amount) {
			direction = "diminuiu"
		}
		findings = append(findings, Finding{
			Type:            model.DivergenceValueChange,
			ParticipantID:   p.ParticipantID,
			ParticipantName: p.Name,
			Message: fmt.Sprintf("Valor alterado para %s em %s: %s de %s para %s",
				p.Name,
				model.Day(p.Date).Format(displayLayout),
				direction,
				old.Amount.String(),
				p.Amount.String()),
		})
	}
	return newResult(findings)
}

func valueKey(p model.ParticipantData) string {
	return p.ParticipantID + "|" + model.Day(p.Date).Format(model.DateLayout)
}
