package creditvalidation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/validation"
)

var (
	ErrInfrastructure = errors.New("validation infrastructure failure")
	ErrAuditWrite     = errors.New("divergence audit write failed")
)

const (
	internalErrorReason = "Erro interno na validação"
	distributedReason   = "Créditos da campanha já distribuídos: a parcial é apenas informativa"
)

type HistoryLoader interface {
	History(ctx context.Context, campaign string) ([]model.PartialData, error)
}

type DistributionChecker interface {
	Distributed(ctx context.Context, campaign string) (bool, error)
}

type DivergenceRecorder interface {
	Record(ctx context.Context, campaign string, participant string, upload string, reasons []string) error
}

// Batch: нормализованная партия, сохраняется при приеме
type Outcome struct {
	Result model.ValidationResult `json:"result"`
	Report model.ValidationReport `json:"report"`
	Batch  model.PartialData      `json:"-"`
}

type CreditValidation interface {
	ValidatePartial(ctx context.Context, campaign string, upload string, processed model.ProcessedData) (Outcome, error)
}

type creditValidation struct {
	history      HistoryLoader
	distribution DistributionChecker
	divergence   DivergenceRecorder
	zaplog       *zap.Logger
	now          func() time.Time
}

func NewCreditValidation(history HistoryLoader, distribution DistributionChecker, divergence DivergenceRecorder, zaplog *zap.Logger) CreditValidation {
	return &creditValidation{
		history:      history,
		distribution: distribution,
		divergence:   divergence,
		zaplog:       zaplog,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// при сбое чтения истории или статуса распределения ответ Divergente и ErrInfrastructure
func (cv *creditValidation) ValidatePartial(ctx context.Context, campaign string, upload string, processed model.ProcessedData) (Outcome, error) {
	batch, findings := Normalize(upload, processed)
	batch.UploadDate = cv.now()

	outcome := Outcome{
		Batch: batch,
		Report: model.ValidationReport{
			FileName:    processed.FileName,
			TotalRows:   len(processed.Participants),
			Summary:     summarize(batch),
			Divergences: []model.Divergence{},
		},
	}

	history, err := cv.history.History(ctx, campaign)
	if err != nil {
		return cv.failClosed(outcome, campaign, upload, err)
	}
	distributed, err := cv.distribution.Distributed(ctx, campaign)
	if err != nil {
		return cv.failClosed(outcome, campaign, upload, err)
	}

	reasons := make([]string, 0, len(findings))
	for _, f := range findings {
		reasons = append(reasons, f.Message)
	}
	results := []validation.Result{
		validation.Participants(withIncomplete(batch, findings), history),
		validation.Dates(batch, history),
		validation.Values(batch, history),
	}
	for _, res := range results {
		reasons = append(reasons, res.Reasons...)
		findings = append(findings, res.Findings...)
	}
	divergent := len(reasons) > 0

	status := model.CreditStatusPending
	switch {
	case distributed:
		status = model.CreditStatusDistributed
		reasons = append(reasons, distributedReason)
	case divergent:
		status = model.CreditStatusDivergent
	}

	outcome.Result = model.ValidationResult{
		IsValid:           !divergent && !distributed,
		DivergenceReasons: reasons,
		CreditStatus:      status,
	}
	outcome.Report.Status = status
	outcome.Report.Divergences = divergences(findings)

	cv.zaplog.Info("partial validated",
		zap.String("campaign", campaign),
		zap.String("upload", upload),
		zap.Bool("valid", outcome.Result.IsValid),
		zap.String("status", string(status)),
		zap.Int("history", len(history)),
		zap.Int("reasons", len(reasons)),
	)

	audit := findings
	if distributed {
		// отказ после распределения тоже попадает в журнал
		audit = append(slices.Clone(findings), validation.Finding{Message: distributedReason})
	}
	if len(audit) > 0 {
		if err := cv.record(ctx, campaign, upload, audit); err != nil {
			cv.zaplog.Error("divergence audit write failed",
				zap.String("campaign", campaign),
				zap.String("upload", upload),
				zap.Error(err),
			)
			return outcome, fmt.Errorf("%w: %w", ErrAuditWrite, err)
		}
	}

	return outcome, nil
}

func (cv *creditValidation) failClosed(outcome Outcome, campaign string, upload string, cause error) (Outcome, error) {
	cv.zaplog.Error("partial validation failed",
		zap.String("campaign", campaign),
		zap.String("upload", upload),
		zap.Error(cause),
	)

	outcome.Result = model.ValidationResult{
		IsValid:           false,
		DivergenceReasons: []string{internalErrorReason},
		CreditStatus:      model.CreditStatusDivergent,
	}
	outcome.Report.Status = model.CreditStatusDivergent
	return outcome, fmt.Errorf("%w: %w", ErrInfrastructure, cause)
}

// одна запись на участника, строки без идентификатора под пустым участником
func (cv *creditValidation) record(ctx context.Context, campaign string, upload string, findings []validation.Finding) error {
	var order []string
	byParticipant := make(map[string][]string)
	for _, f := range findings {
		if _, ok := byParticipant[f.ParticipantID]; !ok {
			order = append(order, f.ParticipantID)
		}
		byParticipant[f.ParticipantID] = append(byParticipant[f.ParticipantID], f.Message)
	}

	for _, participant := range order {
		if err := cv.divergence.Record(ctx, campaign, participant, upload, byParticipant[participant]); err != nil {
			return err
		}
	}
	return nil
}

// участники неполных строк есть в файле и не считаются удаленными
func withIncomplete(batch model.PartialData, findings []validation.Finding) model.PartialData {
	present := batch
	present.Participants = slices.Clone(batch.Participants)
	for _, f := range findings {
		if f.Type == model.DivergenceMissingField && f.ParticipantID != "" {
			present.Participants = append(present.Participants, model.ParticipantData{ParticipantID: f.ParticipantID, Name: f.ParticipantName})
		}
	}
	return present
}
