package extractionclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/cashback/internal/model"
)

const sampleRows = 5

var ErrNotConfigured = errors.New("extraction system address is not set")

// JSON запрос к сервису разметки колонок
type ExtractionRequest struct {
	FileName string           `json:"fileName"`
	Headers  []string         `json:"headers"`
	Sample   []map[string]any `json:"sample"`
}

// JSON ответ сервиса разметки колонок
type ExtractionAnswer struct {
	ColumnMappings []model.ColumnMapping `json:"columnMappings"`
}

type ExtractionClient interface {
	ExtractColumns(ctx context.Context, fileName string, headers []string, records []map[string]any) ([]model.ColumnMapping, error)
}

type extractionClient struct {
	serviceAddr string
	client      *resty.Client
}

func NewExtractionClient(serviceAddr string) ExtractionClient {
	return extractionClient{serviceAddr: serviceAddr, client: resty.New()}
}

func (client extractionClient) ExtractColumns(ctx context.Context, fileName string, headers []string, records []map[string]any) ([]model.ColumnMapping, error) {
	if client.serviceAddr == "" {
		return nil, ErrNotConfigured
	}
	path := "/api/extract-columns"

	sample := records
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}

	setreq := client.client.R().SetContext(ctx)
	setreq.Method = http.MethodPost
	setreq.URL = client.serviceAddr + path
	setreq.SetHeader("Content-Type", "application/json")
	setreq.SetBody(ExtractionRequest{FileName: fileName, Headers: headers, Sample: sample})
	setresp, err := setreq.Send()
	if err != nil {
		return nil, err
	}

	switch setresp.StatusCode() {
	case http.StatusOK:
		var answer ExtractionAnswer
		if err = json.Unmarshal(setresp.Body(), &answer); err != nil {
			return nil, err
		}
		if len(answer.ColumnMappings) == 0 {
			return nil, errors.New("extraction answer has no column mappings")
		}
		return answer.ColumnMappings, nil
	default:
		return nil, fmt.Errorf("extraction request status: %d", setresp.StatusCode())
	}
}
