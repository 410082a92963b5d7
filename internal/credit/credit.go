package credit

import (
	"context"
	"errors"

	"github.com/iurnickita/cashback/internal/model"
)

type Ledger interface {
	CreditList(ctx context.Context, campaign string) ([]model.Credit, error)
	CreditsDistributed(ctx context.Context, campaign string) (bool, error)
	CreditsDistribute(ctx context.Context, campaign string, credits []model.Credit) error
}

type Credit interface {
	List(ctx context.Context, campaign string) ([]model.Credit, error)
	Distributed(ctx context.Context, campaign string) (bool, error)
	Distribute(ctx context.Context, campaign string, credits []model.Credit) error
}

var (
	ErrNothingToDistribute = errors.New("nothing to distribute")
	ErrAmountIncorrect     = errors.New("credit amount is incorrect")
)

type credit struct {
	ledger Ledger
}

func NewCredit(ledger Ledger) Credit {
	return &credit{ledger: ledger}
}

func (credit *credit) List(ctx context.Context, campaign string) ([]model.Credit, error) {
	return credit.ledger.CreditList(ctx, campaign)
}

func (credit *credit) Distributed(ctx context.Context, campaign string) (bool, error) {
	return credit.ledger.CreditsDistributed(ctx, campaign)
}

// повторное распределение отклоняет хранилище: store.ErrAlreadyDistributed
func (credit *credit) Distribute(ctx context.Context, campaign string, credits []model.Credit) error {
	if len(credits) == 0 {
		return ErrNothingToDistribute
	}

	payout := make([]model.Credit, 0, len(credits))
	for _, c := range credits {
		if c.Data.ParticipantID == "" || c.Data.Amount.IsNegative() {
			return ErrAmountIncorrect
		}
		payout = append(payout, model.Credit{Data: model.CreditData{
			Campaign:      campaign,
			ParticipantID: c.Data.ParticipantID,
			Type:          model.CreditTypeCashback,
			Status:        model.CreditRecordDistributed,
			Amount:        c.Data.Amount,
			Description:   c.Data.Description,
		}})
	}

	return credit.ledger.CreditsDistribute(ctx, campaign, payout)
}
