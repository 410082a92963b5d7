package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Day отбрасывает время, оставляя календарную дату в UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Кампании

type Campaign struct {
	ID   string
	Data CampaignData
}
type CampaignData struct {
	Owner     string
	Name      string
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
}

// Загрузки файлов с продажами

type UploadType string

const (
	UploadTypePartial UploadType = "parcial"
	UploadTypeFinal   UploadType = "final"
)

type UploadStatus string

const (
	UploadStatusProcessing    UploadStatus = "processando"
	UploadStatusProcessed     UploadStatus = "processado"
	UploadStatusDivergent     UploadStatus = "divergente"
	UploadStatusInformational UploadStatus = "informativo"
	UploadStatusFailed        UploadStatus = "erro"
)

type Upload struct {
	ID   string
	Data UploadData
}
type UploadData struct {
	Campaign   string
	FileName   string
	StorageKey string
	UploadType UploadType
	Status     UploadStatus
	TotalRows  int
	UploadedAt time.Time
	DeletedAt  *time.Time
}

// Парциальные данные

type PartialData struct {
	UploadID     string            `json:"uploadId"`
	UploadDate   time.Time         `json:"uploadDate"`
	UploadType   UploadType        `json:"uploadType"`
	Participants []ParticipantData `json:"participants"`
}

// Date: день продажи, не день загрузки
type ParticipantData struct {
	ParticipantID string          `json:"participantId"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
}

type SalesRecord struct {
	UploadID      string
	UploadType    UploadType
	UploadedAt    time.Time
	ParticipantID string
	Name          string
	Amount        decimal.Decimal
	SaleDate      time.Time
}

// Результат извлечения колонок

const (
	FieldParticipantID   = "participant_id"
	FieldParticipantName = "participant_name"
	FieldAmount          = "amount"
	FieldTotal           = "total"
	FieldDate            = "date"
)

const (
	AuditTypePartial = "Parcial"
	AuditTypeFinal   = "Final"
)

type ColumnMapping struct {
	OriginalColumn string `json:"originalColumn"`
	MappedField    string `json:"mappedField"`
}

// Результат извлечения колонок: строки по исходным именам колонок
type ProcessedData struct {
	FileName       string           `json:"fileName"`
	Participants   []map[string]any `json:"participants"`
	ColumnMappings []ColumnMapping  `json:"columnMappings"`
	AuditType      string           `json:"auditType"`
}

// Валидация

type CreditStatus string

const (
	CreditStatusPending     CreditStatus = "Pendente"
	CreditStatusDivergent   CreditStatus = "Divergente"
	CreditStatusDistributed CreditStatus = "Distribuído"
)

type ValidationResult struct {
	IsValid           bool         `json:"isValid"`
	DivergenceReasons []string     `json:"divergenceReasons"`
	CreditStatus      CreditStatus `json:"creditStatus"`
}

type DivergenceType string

const (
	DivergenceRemovedParticipant DivergenceType = "Remoção de participante"
	DivergenceRetroactiveDate    DivergenceType = "Data retroativa"
	DivergenceValueChange        DivergenceType = "Alteração de valor"
	DivergenceMissingField       DivergenceType = "Campo obrigatório ausente"
)

type Divergence struct {
	Type            DivergenceType `json:"type"`
	ParticipantID   string         `json:"participantId"`
	ParticipantName string         `json:"participantName"`
	Message         string         `json:"message"`
}

type ParticipantSummary struct {
	ParticipantID string          `json:"participantId"`
	Name          string          `json:"name"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Records       int             `json:"records"`
}

type ValidationReport struct {
	FileName    string               `json:"fileName"`
	TotalRows   int                  `json:"totalRows"`
	Summary     []ParticipantSummary `json:"summary"`
	Status      CreditStatus         `json:"status"`
	Divergences []Divergence         `json:"divergences"`
}

// Кредиты

type CreditType string

const (
	CreditTypeDivergence CreditType = "divergence"
	CreditTypeCashback   CreditType = "cashback"
)

const (
	CreditRecordDivergent   = "divergente"
	CreditRecordDistributed = "distribuido"
)

type Credit struct {
	ID   int64
	Data CreditData
}
type CreditData struct {
	Campaign         string
	ParticipantID    string
	UploadID         string
	Type             CreditType
	Status           string
	Amount           decimal.Decimal
	DivergenceReason string
	Description      string
	CreatedAt        time.Time
}
