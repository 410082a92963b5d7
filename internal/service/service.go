package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/credit"
	"github.com/iurnickita/cashback/internal/creditvalidation"
	"github.com/iurnickita/cashback/internal/divergence"
	"github.com/iurnickita/cashback/internal/extraction"
	"github.com/iurnickita/cashback/internal/lock"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/partial"
	"github.com/iurnickita/cashback/internal/service/config"
	"github.com/iurnickita/cashback/internal/service/extractionclient"
	"github.com/iurnickita/cashback/internal/spreadsheet"
	"github.com/iurnickita/cashback/internal/storage"
	"github.com/iurnickita/cashback/internal/store"
)

type Service interface {
	CreateCampaign(ctx context.Context, owner string, data model.CampaignData) (model.Campaign, error)
	GetCampaign(ctx context.Context, owner string, campaign string) (model.Campaign, error)
	ListCampaigns(ctx context.Context, owner string) ([]model.Campaign, error)
	UploadPartial(ctx context.Context, owner string, campaign string, req UploadRequest) (UploadResult, error)
	ValidateProcessed(ctx context.Context, owner string, campaign string, processed model.ProcessedData) (creditvalidation.Outcome, error)
	ListUploads(ctx context.Context, owner string, campaign string) ([]model.Upload, error)
	DeleteUpload(ctx context.Context, owner string, campaign string, upload string) error
	History(ctx context.Context, owner string, campaign string) ([]model.PartialData, error)
	ListCredits(ctx context.Context, owner string, campaign string) ([]model.Credit, error)
	DistributeCredits(ctx context.Context, owner string, campaign string, credits []model.Credit) error
}

var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("campaign belongs to another user")
	ErrUnprocessableEntity  = errors.New("unprocessable entity")
	ErrUnsupportedMediaType = errors.New("unsupported file type")
	ErrTooLarge             = errors.New("file is too large")
	ErrAlreadyDistributed   = errors.New("credits already distributed")
)

const DefaultMaxUploadSize = 20 << 20

// UploadRequest загружаемый файл продаж.
type UploadRequest struct {
	FileName   string
	Data       []byte
	UploadType model.UploadType
}

// UploadResult партия и результат её проверки.
type UploadResult struct {
	Upload  model.Upload
	Outcome creditvalidation.Outcome
}

type service struct {
	cfg        config.Config
	store      store.Store
	storage    storage.Storage
	locker     lock.Locker
	partial    partial.Partial
	credit     credit.Credit
	validation creditvalidation.CreditValidation
	extraction extractionclient.ExtractionClient
	zaplog     *zap.Logger
	now        func() time.Time
}

func NewService(cfg config.Config, store store.Store, storage storage.Storage, locker lock.Locker, zaplog *zap.Logger) Service {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}

	partial := partial.NewPartial(store)
	credit := credit.NewCredit(store)
	divergence := divergence.NewDivergence(store)

	service := service{
		cfg:        cfg,
		store:      store,
		storage:    storage,
		locker:     locker,
		partial:    partial,
		credit:     credit,
		validation: creditvalidation.NewCreditValidation(partial, credit, divergence, zaplog),
		extraction: extractionclient.NewExtractionClient(cfg.ExtractionAddr),
		zaplog:     zaplog,
		now:        func() time.Time { return time.Now().UTC() },
	}

	return &service
}

// Кампании

func (service *service) CreateCampaign(ctx context.Context, owner string, data model.CampaignData) (model.Campaign, error) {
	if owner == "" || strings.TrimSpace(data.Name) == "" {
		return model.Campaign{}, ErrInsufficientData
	}
	if data.StartsAt.IsZero() || data.EndsAt.IsZero() || data.EndsAt.Before(data.StartsAt) {
		return model.Campaign{}, ErrInsufficientData
	}

	campaign := model.Campaign{
		ID: uuid.NewString(),
		Data: model.CampaignData{
			Owner:     owner,
			Name:      strings.TrimSpace(data.Name),
			StartsAt:  model.Day(data.StartsAt),
			EndsAt:    model.Day(data.EndsAt),
			CreatedAt: service.now(),
		},
	}
	if err := service.store.CampaignCreate(ctx, campaign); err != nil {
		return model.Campaign{}, err
	}
	return campaign, nil
}

func (service *service) GetCampaign(ctx context.Context, owner string, campaign string) (model.Campaign, error) {
	if owner == "" || campaign == "" {
		return model.Campaign{}, ErrInsufficientData
	}

	c, err := service.store.CampaignGet(ctx, campaign)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.Campaign{}, ErrNotFound
		}
		return model.Campaign{}, err
	}
	if c.Data.Owner != owner {
		return model.Campaign{}, ErrForbidden
	}
	return c, nil
}

func (service *service) ListCampaigns(ctx context.Context, owner string) ([]model.Campaign, error) {
	if owner == "" {
		return nil, ErrInsufficientData
	}
	return service.store.CampaignList(ctx, owner)
}

// Выгрузки

// загрузки одной кампании выполняются по очереди под блокировкой
func (service *service) UploadPartial(ctx context.Context, owner string, campaign string, req UploadRequest) (UploadResult, error) {
	if req.FileName == "" || len(req.Data) == 0 {
		return UploadResult{}, ErrInsufficientData
	}
	if int64(len(req.Data)) > service.cfg.MaxUploadSize {
		return UploadResult{}, ErrTooLarge
	}
	if !spreadsheet.Supported(req.FileName) {
		return UploadResult{}, ErrUnsupportedMediaType
	}
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return UploadResult{}, err
	}

	sheet, err := spreadsheet.Parse(req.FileName, req.Data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %w", ErrUnprocessableEntity, err)
	}
	records := sheet.Records()
	processed := extraction.Processed(req.FileName, auditType(req.UploadType), records, service.columnMappings(ctx, req.FileName, sheet.Header, records))

	unlock, err := service.locker.Lock(ctx, campaign)
	if err != nil {
		return UploadResult{}, err
	}
	defer unlock()

	upload := model.Upload{
		ID: uuid.NewString(),
		Data: model.UploadData{
			Campaign:   campaign,
			FileName:   filepath.Base(req.FileName),
			UploadType: uploadType(req.UploadType),
			Status:     model.UploadStatusProcessing,
			TotalRows:  len(records),
			UploadedAt: service.now(),
		},
	}
	upload.Data.StorageKey = storage.Key(campaign, upload.ID, upload.Data.FileName)
	if err = service.store.UploadCreate(ctx, upload); err != nil {
		return UploadResult{}, err
	}

	err = service.storage.Upload(ctx, upload.Data.StorageKey, bytes.NewReader(req.Data), contentType(upload.Data.FileName))
	if err != nil {
		service.setStatus(ctx, &upload, model.UploadStatusFailed)
		return UploadResult{Upload: upload}, fmt.Errorf("archive upload %s: %w", upload.ID, err)
	}

	outcome, err := service.validation.ValidatePartial(ctx, campaign, upload.ID, processed)
	result := UploadResult{Upload: upload, Outcome: outcome}
	if err != nil {
		service.setStatus(ctx, &result.Upload, model.UploadStatusFailed)
		return result, err
	}

	switch {
	case outcome.Result.CreditStatus == model.CreditStatusDistributed:
		service.setStatus(ctx, &result.Upload, model.UploadStatusInformational)
	case outcome.Result.IsValid:
		if err = service.store.UploadAccept(ctx, campaign, upload.ID, outcome.Batch.Participants); err != nil {
			service.setStatus(ctx, &result.Upload, model.UploadStatusFailed)
			return result, fmt.Errorf("accept upload %s: %w", upload.ID, err)
		}
		result.Upload.Data.Status = model.UploadStatusProcessed
	default:
		service.setStatus(ctx, &result.Upload, model.UploadStatusDivergent)
	}

	service.zaplog.Info("upload processed",
		zap.String("campaign", campaign),
		zap.String("upload", upload.ID),
		zap.String("status", string(result.Upload.Data.Status)),
		zap.Int("rows", len(records)),
	)
	return result, nil
}

// только проверка, без приема партии
func (service *service) ValidateProcessed(ctx context.Context, owner string, campaign string, processed model.ProcessedData) (creditvalidation.Outcome, error) {
	if processed.FileName == "" {
		return creditvalidation.Outcome{}, ErrInsufficientData
	}
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return creditvalidation.Outcome{}, err
	}
	return service.validation.ValidatePartial(ctx, campaign, "validacao-"+uuid.NewString(), processed)
}

func (service *service) ListUploads(ctx context.Context, owner string, campaign string) ([]model.Upload, error) {
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return nil, err
	}
	return service.store.UploadList(ctx, campaign)
}

// мягкое удаление, архивный файл остается
func (service *service) DeleteUpload(ctx context.Context, owner string, campaign string, upload string) error {
	if upload == "" {
		return ErrInsufficientData
	}
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return err
	}

	u, err := service.store.UploadGet(ctx, upload)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if u.Data.Campaign != campaign || u.Data.DeletedAt != nil {
		return ErrNotFound
	}

	unlock, err := service.locker.Lock(ctx, campaign)
	if err != nil {
		return err
	}
	defer unlock()

	if err = service.store.UploadSoftDelete(ctx, upload); err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (service *service) History(ctx context.Context, owner string, campaign string) ([]model.PartialData, error) {
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return nil, err
	}
	return service.partial.History(ctx, campaign)
}

// Кредиты

func (service *service) ListCredits(ctx context.Context, owner string, campaign string) ([]model.Credit, error) {
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return nil, err
	}
	return service.credit.List(ctx, campaign)
}

func (service *service) DistributeCredits(ctx context.Context, owner string, campaign string, credits []model.Credit) error {
	if _, err := service.GetCampaign(ctx, owner, campaign); err != nil {
		return err
	}

	unlock, err := service.locker.Lock(ctx, campaign)
	if err != nil {
		return err
	}
	defer unlock()

	err = service.credit.Distribute(ctx, campaign, credits)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, credit.ErrNothingToDistribute):
		return ErrInsufficientData
	case errors.Is(err, credit.ErrAmountIncorrect):
		return fmt.Errorf("%w: %w", ErrUnprocessableEntity, err)
	case errors.Is(err, store.ErrAlreadyDistributed):
		return ErrAlreadyDistributed
	default:
		return err
	}
}

func (service *service) columnMappings(ctx context.Context, fileName string, header []string, records []map[string]any) []model.ColumnMapping {
	mappings, err := service.extraction.ExtractColumns(ctx, fileName, header, records)
	if err == nil {
		return mappings
	}
	if !errors.Is(err, extractionclient.ErrNotConfigured) {
		service.zaplog.Warn("column extraction failed, using header matching",
			zap.String("file", fileName),
			zap.Error(err),
		)
	}
	return extraction.Heuristic(header)
}

// зависшие партии позже закроет janitor
func (service *service) setStatus(ctx context.Context, upload *model.Upload, status model.UploadStatus) {
	upload.Data.Status = status
	if err := service.store.UploadSetStatus(context.WithoutCancel(ctx), upload.ID, status); err != nil {
		service.zaplog.Error("upload status update failed",
			zap.String("upload", upload.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func uploadType(t model.UploadType) model.UploadType {
	if t == model.UploadTypeFinal {
		return model.UploadTypeFinal
	}
	return model.UploadTypePartial
}

func auditType(t model.UploadType) string {
	if t == model.UploadTypeFinal {
		return model.AuditTypeFinal
	}
	return model.AuditTypePartial
}

func contentType(fileName string) string {
	if t := mime.TypeByExtension(filepath.Ext(fileName)); t != "" {
		return t
	}
	return "application/octet-stream"
}
