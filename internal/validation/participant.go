package validation

import (
	"fmt"

	"github.com/iurnickita/cashback/internal/model"
)

func Participants(batch model.PartialData, history []model.PartialData) Result {
	if len(history) == 0 {
		return valid()
	}

	current := make(map[string]struct{}, len(batch.Participants))
	for _, p := range batch.Participants {
		current[p.ParticipantID] = struct{}{}
	}

	// порядок первого появления в истории, имя - последнее известное
	var order []string
	names := make(map[string]string)
	for _, partial := range history {
		for _, p := range partial.Participants {
			if _, ok := names[p.ParticipantID]; !ok {
				order = append(order, p.ParticipantID)
			}
			names[p.ParticipantID] = p.Name
		}
	}

	var findings []Finding
	for _, id := range order {
		if _, ok := current[id]; ok {
			continue
		}
		findings = append(findings, Finding{
			Type:            model.DivergenceRemovedParticipant,
			ParticipantID:   id,
			ParticipantName: names[id],
			Message:         fmt.Sprintf("Participante removido: %s (ID: %s)", names[id], id),
		})
	}
	if len(findings) == 0 {
		return valid()
	}

	summary := fmt.Sprintf("%d participante(s) removido(s) em relação às parciais anteriores", len(findings))
	return newResult(findings, summary)
}
