package validation

import (
	"time"

	"github.com/iurnickita/cashback/internal/model"
)

const displayLayout = "02/01/2006"

type Finding struct {
	Type            model.DivergenceType
	ParticipantID   string
	ParticipantName string
	Message         string
}

type Result struct {
	IsValid  bool
	Reasons  []string
	Findings []Finding
}

func newResult(findings []Finding, summary ...string) Result {
	if len(findings) == 0 {
		return valid()
	}
	reasons := make([]string, 0, len(findings)+len(summary))
	for _, f := range findings {
		reasons = append(reasons, f.Message)
	}
	reasons = append(reasons, summary...)
	return Result{IsValid: false, Reasons: reasons, Findings: findings}
}

func valid() Result {
	return Result{IsValid: true, Reasons: []string{}, Findings: []Finding{}}
}

type Check func(batch model.PartialData, history []model.PartialData) Result

func daysBetween(from, to time.Time) int {
	return int(model.Day(to).Sub(model.Day(from)).Hours() / 24)
}
