package validation

import (
	"fmt"
	"time"

	"github.com/iurnickita/cashback/internal/model"
)

// Dates: тот же день допускается, раньше последней даты нельзя
func Dates(batch model.PartialData, history []model.PartialData) Result {
	floor, ok := maxDate(history)
	if !ok {
		return valid()
	}

	var findings []Finding
	for _, p := range batch.Participants {
		date := model.Day(p.Date)
		if !date.Before(floor) {
			continue
		}
		findings = append(findings, Finding{
			Type:            model.DivergenceRetroactiveDate,
			ParticipantID:   p.ParticipantID,
			ParticipantName: p.Name,
			Message: fmt.Sprintf("Data retroativa para %s: %s é %d dia(s) anterior à última data registrada (%s)",
				p.Name,
				date.Format(displayLayout),
				daysBetween(date, floor),
				floor.Format(displayLayout)),
		})
	}
	return newResult(findings)
}

func maxDate(history []model.PartialData) (time.Time, bool) {
	var floor time.Time
	found := false
	for _, partial := range history {
		for _, p := range partial.Participants {
			date := model.Day(p.Date)
			if !found || date.After(floor) {
				floor = date
				found = true
			}
		}
	}
	return floor, found
}
