package partial

import (
	"context"
	"errors"
	"fmt"

	"github.com/iurnickita/cashback/internal/model"
)

var ErrInsufficientData = errors.New("insufficient data")

type Reader interface {
	PartialHistoryGet(ctx context.Context, campaign string) ([]model.SalesRecord, error)
}

type Partial interface {
	History(ctx context.Context, campaign string) ([]model.PartialData, error)
}

type partial struct {
	reader Reader
}

func NewPartial(reader Reader) Partial {
	return &partial{reader: reader}
}

// ошибка чтения никогда не превращается в пустую историю
func (partial *partial) History(ctx context.Context, campaign string) ([]model.PartialData, error) {
	if campaign == "" {
		return nil, ErrInsufficientData
	}

	records, err := partial.reader.PartialHistoryGet(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("load partial history of %s: %w", campaign, err)
	}

	return Group(records), nil
}

func Group(records []model.SalesRecord) []model.PartialData {
	history := make([]model.PartialData, 0)
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.UploadID]
		if !ok {
			i = len(history)
			index[r.UploadID] = i
			history = append(history, model.PartialData{
				UploadID:   r.UploadID,
				UploadDate: r.UploadedAt,
				UploadType: r.UploadType,
			})
		}
		history[i].Participants = append(history[i].Participants, model.ParticipantData{
			ParticipantID: r.ParticipantID,
			Name:          r.Name,
			Amount:        r.Amount,
			Date:          model.Day(r.SaleDate),
		})
	}
	return history
}
