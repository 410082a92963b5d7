package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/auth"
	"github.com/iurnickita/cashback/internal/creditvalidation"
	"github.com/iurnickita/cashback/internal/gzip"
	"github.com/iurnickita/cashback/internal/handler/config"
	"github.com/iurnickita/cashback/internal/lock"
	"github.com/iurnickita/cashback/internal/logger"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second
	// запас на обвязку multipart сверх лимита файла
	multipartSlack = 1 << 20
)

func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, cfg, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	zaplog.Info("server started", zap.String("address", cfg.ServerAddr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type handler struct {
	auth    auth.Auth
	service service.Service
	cfg     config.Config
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, cfg config.Config, zaplog *zap.Logger) *handler {
	cfg.MaxUploadSize = maxUploadSize(cfg)
	return &handler{
		auth:    auth,
		service: service,
		cfg:     cfg,
		zaplog:  zaplog,
	}
}

func maxUploadSize(cfg config.Config) int64 {
	if cfg.MaxUploadSize <= 0 {
		return service.DefaultMaxUploadSize
	}
	return cfg.MaxUploadSize
}

func (h *handler) newRouter() *http.ServeMux {
	public := func(f http.HandlerFunc) http.HandlerFunc {
		return gzip.GzipMiddleware(logger.RequestLogMdlw(f, h.zaplog))
	}
	private := func(f http.HandlerFunc) http.HandlerFunc {
		return public(h.auth.Middleware(f))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/register", public(h.auth.Register))
	mux.HandleFunc("POST /api/user/login", public(h.auth.Login))
	mux.HandleFunc("POST /api/campaigns", private(h.PostCampaign))
	mux.HandleFunc("GET /api/campaigns", private(h.GetCampaigns))
	mux.HandleFunc("GET /api/campaigns/{campaign}", private(h.GetCampaign))
	mux.HandleFunc("POST /api/campaigns/{campaign}/uploads", private(h.PostUpload))
	mux.HandleFunc("GET /api/campaigns/{campaign}/uploads", private(h.GetUploads))
	mux.HandleFunc("DELETE /api/campaigns/{campaign}/uploads/{upload}", private(h.DeleteUpload))
	mux.HandleFunc("POST /api/campaigns/{campaign}/validate", private(h.PostValidate))
	mux.HandleFunc("GET /api/campaigns/{campaign}/partials", private(h.GetPartials))
	mux.HandleFunc("GET /api/campaigns/{campaign}/credits", private(h.GetCredits))
	mux.HandleFunc("POST /api/campaigns/{campaign}/credits/distribute", private(h.PostDistribute))

	return mux
}

// Кампании

type CampaignJSONRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"startsAt"`
	EndsAt   string `json:"endsAt"`
}

type CampaignJSONResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartsAt  string    `json:"startsAt"`
	EndsAt    string    `json:"endsAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func campaignJSON(c model.Campaign) CampaignJSONResponse {
	return CampaignJSONResponse{
		ID:        c.ID,
		Name:      c.Data.Name,
		StartsAt:  c.Data.StartsAt.Format(model.DateLayout),
		EndsAt:    c.Data.EndsAt.Format(model.DateLayout),
		CreatedAt: c.Data.CreatedAt,
	}
}

func (h *handler) PostCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	startsAt, err := time.Parse(model.DateLayout, req.StartsAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	endsAt, err := time.Parse(model.DateLayout, req.EndsAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	campaign, err := h.service.CreateCampaign(r.Context(), userCode, model.CampaignData{
		Name:     req.Name,
		StartsAt: startsAt,
		EndsAt:   endsAt,
	})
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, campaignJSON(campaign))
}

func (h *handler) GetCampaigns(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	campaigns, err := h.service.ListCampaigns(r.Context(), userCode)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if len(campaigns) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	campaignsJSON := make([]CampaignJSONResponse, 0, len(campaigns))
	for _, c := range campaigns {
		campaignsJSON = append(campaignsJSON, campaignJSON(c))
	}
	h.writeJSON(w, http.StatusOK, campaignsJSON)
}

func (h *handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	campaign, err := h.service.GetCampaign(r.Context(), userCode, r.PathValue("campaign"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, campaignJSON(campaign))
}

// Выгрузки

type UploadJSONResponse struct {
	ID         string             `json:"id"`
	FileName   string             `json:"fileName"`
	UploadType model.UploadType   `json:"uploadType"`
	Status     model.UploadStatus `json:"status"`
	TotalRows  int                `json:"totalRows"`
	UploadedAt time.Time          `json:"uploadedAt"`
}

func uploadJSON(u model.Upload) UploadJSONResponse {
	return UploadJSONResponse{
		ID:         u.ID,
		FileName:   u.Data.FileName,
		UploadType: u.Data.UploadType,
		Status:     u.Data.Status,
		TotalRows:  u.Data.TotalRows,
		UploadedAt: u.Data.UploadedAt,
	}
}

type PostUploadJSONResponse struct {
	Upload UploadJSONResponse     `json:"upload"`
	Result model.ValidationResult `json:"result"`
	Report model.ValidationReport `json:"report"`
}

func (h *handler) PostUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+multipartSlack)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, service.ErrTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	result, err := h.service.UploadPartial(r.Context(), userCode, r.PathValue("campaign"), service.UploadRequest{
		FileName:   header.Filename,
		Data:       data,
		UploadType: model.UploadType(r.FormValue("upload_type")),
	})
	response := PostUploadJSONResponse{
		Upload: uploadJSON(result.Upload),
		Result: result.Outcome.Result,
		Report: result.Outcome.Report,
	}
	if err != nil {
		if validationFailed(err) {
			h.zaplog.Error("upload validation failed", zap.Error(err))
			h.writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) GetUploads(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	uploads, err := h.service.ListUploads(r.Context(), userCode, r.PathValue("campaign"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if len(uploads) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	uploadsJSON := make([]UploadJSONResponse, 0, len(uploads))
	for _, u := range uploads {
		uploadsJSON = append(uploadsJSON, uploadJSON(u))
	}
	h.writeJSON(w, http.StatusOK, uploadsJSON)
}

func (h *handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	err := h.service.DeleteUpload(r.Context(), userCode, r.PathValue("campaign"), r.PathValue("upload"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Проверка

type ValidateJSONResponse struct {
	Result model.ValidationResult `json:"result"`
	Report model.ValidationReport `json:"report"`
}

func (h *handler) PostValidate(w http.ResponseWriter, r *http.Request) {
	var processed model.ProcessedData
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&processed); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	outcome, err := h.service.ValidateProcessed(r.Context(), userCode, r.PathValue("campaign"), processed)
	response := ValidateJSONResponse{Result: outcome.Result, Report: outcome.Report}
	if err != nil {
		if validationFailed(err) {
			h.zaplog.Error("validation failed", zap.Error(err))
			h.writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) GetPartials(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	history, err := h.service.History(r.Context(), userCode, r.PathValue("campaign"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// Кредиты

type CreditJSONResponse struct {
	ParticipantID    string           `json:"participantId"`
	UploadID         string           `json:"uploadId,omitempty"`
	Type             model.CreditType `json:"type"`
	Status           string           `json:"status"`
	Amount           decimal.Decimal  `json:"amount"`
	DivergenceReason string           `json:"divergenceReason,omitempty"`
	Description      string           `json:"description,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

func (h *handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	credits, err := h.service.ListCredits(r.Context(), userCode, r.PathValue("campaign"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if len(credits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	creditsJSON := make([]CreditJSONResponse, 0, len(credits))
	for _, c := range credits {
		creditsJSON = append(creditsJSON, CreditJSONResponse{
			ParticipantID:    c.Data.ParticipantID,
			UploadID:         c.Data.UploadID,
			Type:             c.Data.Type,
			Status:           c.Data.Status,
			Amount:           c.Data.Amount,
			DivergenceReason: c.Data.DivergenceReason,
			Description:      c.Data.Description,
			CreatedAt:        c.Data.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, creditsJSON)
}

type DistributeJSONRequest struct {
	ParticipantID string          `json:"participantId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

func (h *handler) PostDistribute(w http.ResponseWriter, r *http.Request) {
	var req []DistributeJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	credits := make([]model.Credit, 0, len(req))
	for _, c := range req {
		credits = append(credits, model.Credit{Data: model.CreditData{
			ParticipantID: c.ParticipantID,
			Amount:        c.Amount,
			Description:   c.Description,
		}})
	}

	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	if err := h.service.DistributeCredits(r.Context(), userCode, r.PathValue("campaign"), credits); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func validationFailed(err error) bool {
	return errors.Is(err, creditvalidation.ErrInfrastructure) || errors.Is(err, creditvalidation.ErrAuditWrite)
}

func (h *handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientData):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrAlreadyDistributed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, service.ErrUnsupportedMediaType):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, service.ErrUnprocessableEntity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, lock.ErrLockTimeout), validationFailed(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.zaplog.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}
