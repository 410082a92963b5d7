package creditvalidation

import (
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/validation"
)

func summarize(batch model.PartialData) []model.ParticipantSummary {
	summary := make([]model.ParticipantSummary, 0)
	index := make(map[string]int)

	for _, p := range batch.Participants {
		i, ok := index[p.ParticipantID]
		if !ok {
			i = len(summary)
			index[p.ParticipantID] = i
			summary = append(summary, model.ParticipantSummary{ParticipantID: p.ParticipantID})
		}
		summary[i].Name = p.Name
		summary[i].TotalAmount = summary[i].TotalAmount.Add(p.Amount)
		summary[i].Records++
	}
	return summary
}

func divergences(findings []validation.Finding) []model.Divergence {
	list := make([]model.Divergence, 0, len(findings))
	for _, f := range findings {
		list = append(list, model.Divergence{
			Type:            f.Type,
			ParticipantID:   f.ParticipantID,
			ParticipantName: f.ParticipantName,
			Message:         f.Message,
		})
	}
	return list
}
