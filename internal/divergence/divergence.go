package divergence

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/cashback/internal/model"
)

const reasonSeparator = "; "

type Writer interface {
	CreditInsert(ctx context.Context, credit model.Credit) error
}

type Divergence interface {
	Record(ctx context.Context, campaign string, participant string, upload string, reasons []string) error
}

type divergence struct {
	writer Writer
}

func NewDivergence(writer Writer) Divergence {
	return &divergence{writer: writer}
}

func (divergence *divergence) Record(ctx context.Context, campaign string, participant string, upload string, reasons []string) error {
	credit := model.Credit{
		Data: model.CreditData{
			Campaign:         campaign,
			ParticipantID:    participant,
			UploadID:         upload,
			Type:             model.CreditTypeDivergence,
			Status:           model.CreditRecordDivergent,
			Amount:           decimal.Zero,
			DivergenceReason: strings.Join(reasons, reasonSeparator),
			Description:      fmt.Sprintf("Parcial rejeitada: %d divergência(s) encontrada(s)", len(reasons)),
		},
	}

	if err := divergence.writer.CreditInsert(ctx, credit); err != nil {
		return fmt.Errorf("record divergence of upload %s: %w", upload, err)
	}
	return nil
}
