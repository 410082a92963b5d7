package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	t.Run("semicolon", func(t *testing.T) {
		data := []byte("\xEF\xBB\xBFCódigo;Vendedor;Valor;Data\n\nP1;Ana;1.234,56;10/01/2024\nP2;Bruno;10;11/01/2024\n")
		sheet, err := Parse("vendas.csv", data)
		require.NoError(t, err)
		assert.Equal(t, []string{"Código", "Vendedor", "Valor", "Data"}, sheet.Header)
		require.Len(t, sheet.Rows, 2)

		records := sheet.Records()
		assert.Equal(t, "1.234,56", records[0]["Valor"])
		assert.Equal(t, "Bruno", records[1]["Vendedor"])
	})

	t.Run("comma with short row", func(t *testing.T) {
		sheet, err := Parse("vendas.CSV", []byte("id,name,amount\nP1,Ana\n"))
		require.NoError(t, err)
		records := sheet.Records()
		require.Len(t, records, 1)
		assert.Equal(t, "", records[0]["amount"])
	})

	t.Run("header only", func(t *testing.T) {
		_, err := Parse("vendas.csv", []byte("id,name,amount\n"))
		require.ErrorIs(t, err, ErrEmptySheet)
	})
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Código", "Vendedor", "Valor", "Data"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"P1", "Ana", 100.5, 45301}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"P2", "Bruno", 20, 45302}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	parsed, err := Parse("vendas.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"Código", "Vendedor", "Valor", "Data"}, parsed.Header)
	require.Len(t, parsed.Rows, 2)

	records := parsed.Records()
	assert.Equal(t, "P1", records[0]["Código"])
	assert.Equal(t, "100.5", records[0]["Valor"])
	assert.Equal(t, "45301", records[0]["Data"])
}

func TestParseUnsupported(t *testing.T) {
	_, err := Parse("vendas.pdf", []byte("%PDF"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, Supported("vendas.pdf"))
	assert.True(t, Supported("VENDAS.XLSX"))
}

func TestParseBrokenExcel(t *testing.T) {
	_, err := Parse("vendas.xlsx", []byte("not a zip"))
	require.Error(t, err)
}
