package creditvalidation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/model"
)

type fakeHistory struct {
	history []model.PartialData
	err     error
}

func (f *fakeHistory) History(ctx context.Context, campaign string) ([]model.PartialData, error) {
	return f.history, f.err
}

type fakeDistribution struct {
	distributed bool
	err         error
}

func (f *fakeDistribution) Distributed(ctx context.Context, campaign string) (bool, error) {
	return f.distributed, f.err
}

type recorded struct {
	participant string
	upload      string
	reasons     []string
}

type fakeRecorder struct {
	records []recorded
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, campaign string, participant string, upload string, reasons []string) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, recorded{participant: participant, upload: upload, reasons: reasons})
	return nil
}

func historyBatch(rows ...[3]string) model.PartialData {
	batch := model.PartialData{UploadType: model.UploadTypePartial}
	for _, r := range rows {
		date, err := time.Parse(model.DateLayout, r[1])
		if err != nil {
			panic(err)
		}
		batch.Participants = append(batch.Participants, model.ParticipantData{
			ParticipantID: r[0],
			Name:          "Vendedor " + r[0],
			Amount:        decimal.RequireFromString(r[2]),
			Date:          date,
		})
	}
	return batch
}

func processed(rows ...[3]string) model.ProcessedData {
	data := model.ProcessedData{
		FileName:  "vendas.xlsx",
		AuditType: model.AuditTypePartial,
		ColumnMappings: []model.ColumnMapping{
			{OriginalColumn: "Código", MappedField: model.FieldParticipantID},
			{OriginalColumn: "Vendedor", MappedField: model.FieldParticipantName},
			{OriginalColumn: "Valor", MappedField: model.FieldAmount},
			{OriginalColumn: "Data", MappedField: model.FieldDate},
		},
	}
	for _, r := range rows {
		data.Participants = append(data.Participants, map[string]any{
			"Código":   r[0],
			"Vendedor": "Vendedor " + r[0],
			"Valor":    r[2],
			"Data":     r[1],
		})
	}
	return data
}

type fixture struct {
	history      *fakeHistory
	distribution *fakeDistribution
	recorder     *fakeRecorder
	cv           CreditValidation
}

func newFixture(history ...model.PartialData) *fixture {
	f := &fixture{
		history:      &fakeHistory{history: history},
		distribution: &fakeDistribution{},
		recorder:     &fakeRecorder{},
	}
	f.cv = NewCreditValidation(f.history, f.distribution, f.recorder, zap.NewNop())
	return f
}

func TestScenarioNewParticipantIsAccepted(t *testing.T) {
	f := newFixture(historyBatch([3]string{"P1", "2024-01-10", "100"}))

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-10", "100"},
		[3]string{"P2", "2024-01-11", "50"},
	))
	require.NoError(t, err)
	assert.True(t, out.Result.IsValid)
	assert.Empty(t, out.Result.DivergenceReasons)
	assert.Equal(t, model.CreditStatusPending, out.Result.CreditStatus)
	assert.Empty(t, f.recorder.records)

	require.Len(t, out.Batch.Participants, 2)
	assert.Equal(t, "u2", out.Batch.UploadID)
	assert.False(t, out.Batch.UploadDate.IsZero())
}

func TestScenarioRemovedParticipant(t *testing.T) {
	f := newFixture(historyBatch(
		[3]string{"P1", "2024-01-10", "100"},
		[3]string{"P2", "2024-01-10", "200"},
	))

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-10", "100"},
	))
	require.NoError(t, err)
	assert.False(t, out.Result.IsValid)
	assert.Equal(t, model.CreditStatusDivergent, out.Result.CreditStatus)
	require.NotEmpty(t, out.Result.DivergenceReasons)
	assert.Contains(t, out.Result.DivergenceReasons[0], "Participante removido")
	assert.Contains(t, out.Result.DivergenceReasons[0], "P2")

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "P2", f.recorder.records[0].participant)
	assert.Equal(t, "u2", f.recorder.records[0].upload)
}

func TestScenarioRetroactiveDate(t *testing.T) {
	f := newFixture(historyBatch([3]string{"P1", "2024-01-15", "100"}))

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-10", "100"},
	))
	require.NoError(t, err)
	assert.False(t, out.Result.IsValid)
	require.Len(t, out.Result.DivergenceReasons, 1)
	assert.Contains(t, out.Result.DivergenceReasons[0], "5 dia(s)")
	require.Len(t, out.Report.Divergences, 1)
	assert.Equal(t, model.DivergenceRetroactiveDate, out.Report.Divergences[0].Type)
}

func TestScenarioValueIncrease(t *testing.T) {
	f := newFixture(historyBatch([3]string{"P1", "2024-01-10", "100"}))

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-10", "150"},
	))
	require.NoError(t, err)
	assert.False(t, out.Result.IsValid)
	require.Len(t, out.Result.DivergenceReasons, 1)
	assert.Contains(t, out.Result.DivergenceReasons[0], "aumentou de 100 para 150")
}

func TestReasonsOrder(t *testing.T) {
	f := newFixture(historyBatch(
		[3]string{"P1", "2024-01-15", "100"},
		[3]string{"P2", "2024-01-15", "200"},
	))

	data := processed(
		[3]string{"P1", "2024-01-10", "100"},
		[3]string{"P1", "2024-01-15", "101"},
		[3]string{"", "2024-01-15", "1"},
	)
	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", data)
	require.NoError(t, err)

	var types []model.DivergenceType
	for _, d := range out.Report.Divergences {
		types = append(types, d.Type)
	}
	assert.Equal(t, []model.DivergenceType{
		model.DivergenceMissingField,
		model.DivergenceRemovedParticipant,
		model.DivergenceRetroactiveDate,
		model.DivergenceValueChange,
	}, types)
	assert.Contains(t, out.Result.DivergenceReasons[0], "Linha 3")

	// P1 has two findings and shares one record
	require.Len(t, f.recorder.records, 3)
	assert.Equal(t, "", f.recorder.records[0].participant)
	assert.Equal(t, "P2", f.recorder.records[1].participant)
	assert.Equal(t, "P1", f.recorder.records[2].participant)
	assert.Len(t, f.recorder.records[2].reasons, 2)
}

func TestEmptyHistoryAcceptsAnyBatch(t *testing.T) {
	f := newFixture()

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u1", processed(
		[3]string{"P1", "2020-01-01", "-10"},
		[3]string{"P2", "2030-01-01", "0"},
	))
	require.NoError(t, err)
	assert.True(t, out.Result.IsValid)
	assert.Equal(t, []string{}, out.Result.DivergenceReasons)
}

func TestDistributedOverridesStatus(t *testing.T) {
	f := newFixture(historyBatch(
		[3]string{"P1", "2024-01-15", "100"},
		[3]string{"P2", "2024-01-15", "100"},
	))
	f.distribution.distributed = true

	t.Run("divergent batch", func(t *testing.T) {
		out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
			[3]string{"P1", "2024-01-10", "999"},
		))
		require.NoError(t, err)
		assert.False(t, out.Result.IsValid)
		assert.Equal(t, model.CreditStatusDistributed, out.Result.CreditStatus)
		assert.Equal(t, model.CreditStatusDistributed, out.Report.Status)
		assert.Equal(t, distributedReason, out.Result.DivergenceReasons[len(out.Result.DivergenceReasons)-1])

		var participants []string
		for _, r := range f.recorder.records {
			participants = append(participants, r.participant)
		}
		assert.Equal(t, []string{"P2", "P1", ""}, participants)
	})

	t.Run("clean batch", func(t *testing.T) {
		f.recorder.records = nil
		out, err := f.cv.ValidatePartial(context.Background(), "c1", "u3", processed(
			[3]string{"P1", "2024-01-15", "100"},
			[3]string{"P2", "2024-01-15", "100"},
		))
		require.NoError(t, err)
		assert.False(t, out.Result.IsValid)
		assert.Equal(t, model.CreditStatusDistributed, out.Result.CreditStatus)
		assert.Equal(t, []string{distributedReason}, out.Result.DivergenceReasons)
		assert.Empty(t, out.Report.Divergences)
		require.Len(t, f.recorder.records, 1)
		assert.Equal(t, recorded{participant: "", upload: "u3", reasons: []string{distributedReason}}, f.recorder.records[0])
	})
}

func TestFailClosed(t *testing.T) {
	storageDown := errors.New("connection refused")

	t.Run("history", func(t *testing.T) {
		f := newFixture()
		f.history.err = storageDown

		out, err := f.cv.ValidatePartial(context.Background(), "c1", "u1", processed([3]string{"P1", "2024-01-10", "1"}))
		require.ErrorIs(t, err, ErrInfrastructure)
		require.ErrorIs(t, err, storageDown)
		assert.False(t, out.Result.IsValid)
		assert.Equal(t, []string{internalErrorReason}, out.Result.DivergenceReasons)
		assert.Equal(t, model.CreditStatusDivergent, out.Result.CreditStatus)
		assert.Empty(t, f.recorder.records)
	})

	t.Run("distribution", func(t *testing.T) {
		f := newFixture()
		f.distribution.err = storageDown

		out, err := f.cv.ValidatePartial(context.Background(), "c1", "u1", processed([3]string{"P1", "2024-01-10", "1"}))
		require.ErrorIs(t, err, ErrInfrastructure)
		assert.Equal(t, model.CreditStatusDivergent, out.Result.CreditStatus)
	})
}

func TestAuditWriteFailure(t *testing.T) {
	f := newFixture(historyBatch([3]string{"P1", "2024-01-10", "100"}))
	f.recorder.err = errors.New("insert failed")

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-10", "150"},
	))
	require.ErrorIs(t, err, ErrAuditWrite)
	assert.False(t, out.Result.IsValid)
	assert.Equal(t, model.CreditStatusDivergent, out.Result.CreditStatus)
}

func TestReportSummary(t *testing.T) {
	f := newFixture()

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u1", processed(
		[3]string{"P1", "2024-01-10", "10,50"},
		[3]string{"P2", "2024-01-10", "5"},
		[3]string{"P1", "2024-01-11", "1.000,25"},
	))
	require.NoError(t, err)
	assert.Equal(t, "vendas.xlsx", out.Report.FileName)
	assert.Equal(t, 3, out.Report.TotalRows)
	require.Len(t, out.Report.Summary, 2)
	assert.Equal(t, "P1", out.Report.Summary[0].ParticipantID)
	assert.Equal(t, 2, out.Report.Summary[0].Records)
	assert.True(t, decimal.RequireFromString("1010.75").Equal(out.Report.Summary[0].TotalAmount))
	assert.Equal(t, model.CreditStatusPending, out.Report.Status)
}

func TestNormalize(t *testing.T) {
	t.Run("name column stands in for a missing identifier", func(t *testing.T) {
		batch, findings := Normalize("u1", model.ProcessedData{
			ColumnMappings: []model.ColumnMapping{
				{OriginalColumn: "Nome", MappedField: "Participant Name"},
				{OriginalColumn: "Total", MappedField: model.FieldTotal},
				{OriginalColumn: "Dia", MappedField: model.FieldDate},
			},
			Participants: []map[string]any{
				{"Nome": "Ana", "Total": json.Number("12.5"), "Dia": "10/01/2024"},
				{"Nome": "", "Total": "", "Dia": nil},
			},
		})
		assert.Empty(t, findings)
		require.Len(t, batch.Participants, 1)
		assert.Equal(t, "Ana", batch.Participants[0].ParticipantID)
		assert.True(t, decimal.RequireFromString("12.5").Equal(batch.Participants[0].Amount))
		assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), batch.Participants[0].Date)
	})

	t.Run("final audit type", func(t *testing.T) {
		batch, _ := Normalize("u1", model.ProcessedData{AuditType: "final"})
		assert.Equal(t, model.UploadTypeFinal, batch.UploadType)
		assert.NotNil(t, batch.Participants)
	})
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{in: "R$ 1.234,56", want: "1234.56", ok: true},
		{in: "1,234.56", want: "1234.56", ok: true},
		{in: "10,5", want: "10.5", ok: true},
		{in: "1.234.567", want: "1234567", ok: true},
		{in: "1.500", want: "1500", ok: true},
		{in: "R$ 1.500", want: "1500", ok: true},
		{in: "1,500", want: "1500", ok: true},
		{in: "-2.000", want: "-2000", ok: true},
		{in: "1.500,00", want: "1500", ok: true},
		{in: "1.5", want: "1.5", ok: true},
		{in: "12,50", want: "12.5", ok: true},
		{in: "99.99", want: "99.99", ok: true},
		{in: float64(7.25), want: "7.25", ok: true},
		{in: 3, want: "3", ok: true},
		{in: "abc", ok: false},
		{in: "", ok: false},
		{in: nil, ok: false},
	}
	for _, test := range tests {
		got, ok := parseAmount(test.in)
		require.Equal(t, test.ok, ok, "%v", test.in)
		if test.ok {
			assert.True(t, decimal.RequireFromString(test.want).Equal(got), "%v: %s", test.in, got)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{"2024-01-10", "10/01/2024", "10.01.2024", "2024-01-10T15:04:05Z", "45301", float64(45301)} {
		got, ok := parseDate(in)
		require.True(t, ok, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}

	for _, in := range []any{"ontem", "", nil, float64(0)} {
		_, ok := parseDate(in)
		assert.False(t, ok, "%v", in)
	}
}

func TestThousandsMatchNumericHistory(t *testing.T) {
	f := newFixture(historyBatch([3]string{"P1", "2024-01-10", "1500"}))

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-10", "R$ 1.500"},
	))
	require.NoError(t, err)
	assert.True(t, out.Result.IsValid, "%v", out.Result.DivergenceReasons)
	assert.Empty(t, f.recorder.records)
}

func TestIncompleteRowIsNotARemoval(t *testing.T) {
	f := newFixture(historyBatch(
		[3]string{"P1", "2024-01-10", "100"},
		[3]string{"P2", "2024-01-10", "200"},
	))

	out, err := f.cv.ValidatePartial(context.Background(), "c1", "u2", processed(
		[3]string{"P1", "2024-01-11", "100"},
		[3]string{"P2", "2024-01-11", ""},
	))
	require.NoError(t, err)
	assert.False(t, out.Result.IsValid)
	assert.Equal(t, []string{"Linha 2: campo obrigatório ausente (valor)"}, out.Result.DivergenceReasons)
	assert.Equal(t, model.CreditStatusDivergent, out.Result.CreditStatus)
	require.Len(t, out.Report.Divergences, 1)
	assert.Equal(t, model.DivergenceMissingField, out.Report.Divergences[0].Type)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "P2", f.recorder.records[0].participant)
	assert.Equal(t, []string{"Linha 2: campo obrigatório ausente (valor)"}, f.recorder.records[0].reasons)
}
