package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/store/config"
)

type Store interface {
	AuthRegister(ctx context.Context, login string, passwordHash string) (string, error)
	AuthLogin(ctx context.Context, login string) (string, string, error)
	CampaignCreate(ctx context.Context, campaign model.Campaign) error
	CampaignGet(ctx context.Context, id string) (model.Campaign, error)
	CampaignList(ctx context.Context, owner string) ([]model.Campaign, error)
	UploadCreate(ctx context.Context, upload model.Upload) error
	UploadGet(ctx context.Context, id string) (model.Upload, error)
	UploadList(ctx context.Context, campaign string) ([]model.Upload, error)
	UploadSetStatus(ctx context.Context, id string, status model.UploadStatus) error
	UploadAccept(ctx context.Context, campaign string, upload string, records []model.ParticipantData) error
	UploadSoftDelete(ctx context.Context, id string) error
	UploadMarkStale(ctx context.Context, olderThan time.Time) (int64, error)
	PartialHistoryGet(ctx context.Context, campaign string) ([]model.SalesRecord, error)
	CreditInsert(ctx context.Context, credit model.Credit) error
	CreditList(ctx context.Context, campaign string) ([]model.Credit, error)
	CreditsDistributed(ctx context.Context, campaign string) (bool, error)
	CreditsDistribute(ctx context.Context, campaign string, credits []model.Credit) error
	Close() error
}

var (
	ErrNoRows             = errors.New("no rows")
	ErrAlreadyExists      = errors.New("already exists")
	ErrAlreadyDistributed = errors.New("credits already distributed")
)

const pgDuplicateKeyCode = "23505"

type store struct {
	database *sql.DB
}

// NewStore применяет миграции и открывает пул соединений.
func NewStore(cfg config.Config) (Store, error) {
	if err := Migrate(cfg.DBDsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	return &store{
		database: db,
	}, nil
}

func (store *store) Close() error {
	return store.database.Close()
}

func (store *store) AuthRegister(ctx context.Context, login string, passwordHash string) (string, error) {
	// Запись нового пользователя
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO auth (login, password_hash)"+
			" VALUES ($1, $2)"+
			" RETURNING uuid",
		login,
		passwordHash)

	// Получение ID пользователя
	var uuid int
	err := row.Scan(&uuid)
	if err != nil {
		if isDuplicate(err) {
			return "", ErrAlreadyExists
		}
		return "", err
	}

	return strconv.Itoa(uuid), nil
}

func (store *store) AuthLogin(ctx context.Context, login string) (string, string, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT uuid, password_hash FROM auth"+
			" WHERE login = $1",
		login)
	var uuid int
	var passwordHash string
	err := row.Scan(&uuid, &passwordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNoRows
		}
		return "", "", err
	}

	return strconv.Itoa(uuid), passwordHash, nil
}

func (store *store) CampaignCreate(ctx context.Context, campaign model.Campaign) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO campaigns (id, owner, name, starts_at, ends_at, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6)",
		campaign.ID,
		campaign.Data.Owner,
		campaign.Data.Name,
		nullDate(campaign.Data.StartsAt),
		nullDate(campaign.Data.EndsAt),
		campaign.Data.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

const campaignColumns = "id, owner, name, starts_at, ends_at, created_at"

func (store *store) CampaignGet(ctx context.Context, id string) (model.Campaign, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+campaignColumns+
			" FROM campaigns"+
			" WHERE id = $1",
		id)
	campaign, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Campaign{}, ErrNoRows
		}
		return model.Campaign{}, err
	}
	return campaign, nil
}

func (store *store) CampaignList(ctx context.Context, owner string) ([]model.Campaign, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+campaignColumns+
			" FROM campaigns"+
			" WHERE owner = $1"+
			" ORDER BY created_at DESC",
		owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, rows.Err()
}

func (store *store) UploadCreate(ctx context.Context, upload model.Upload) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO upload_batches (id, campaign_id, file_name, storage_key, upload_type, status, total_rows, uploaded_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		upload.ID,
		upload.Data.Campaign,
		upload.Data.FileName,
		upload.Data.StorageKey,
		upload.Data.UploadType,
		upload.Data.Status,
		upload.Data.TotalRows,
		upload.Data.UploadedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

const uploadColumns = "id, campaign_id, file_name, storage_key, upload_type, status, total_rows, uploaded_at, deleted_at"

func (store *store) UploadGet(ctx context.Context, id string) (model.Upload, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+uploadColumns+
			" FROM upload_batches"+
			" WHERE id = $1",
		id)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Upload{}, ErrNoRows
		}
		return model.Upload{}, err
	}
	return upload, nil
}

func (store *store) UploadList(ctx context.Context, campaign string) ([]model.Upload, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT "+uploadColumns+
			" FROM upload_batches"+
			" WHERE campaign_id = $1"+
			"   AND deleted_at IS NULL"+
			" ORDER BY uploaded_at",
		campaign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

func (store *store) UploadSetStatus(ctx context.Context, id string, status model.UploadStatus) error {
	res, err := store.database.ExecContext(ctx,
		"UPDATE upload_batches"+
			" SET status = $1"+
			" WHERE id = $2",
		status,
		id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// UploadAccept записывает продажи партии и переводит ее в статус processado
// одной транзакцией.
func (store *store) UploadAccept(ctx context.Context, campaign string, upload string, records []model.ParticipantData) error {
	return store.withTx(ctx, func(tx *sql.Tx) error {
		participantStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO participants (campaign_id, participant_id, name)"+
				" VALUES ($1, $2, $3)"+
				" ON CONFLICT (campaign_id, participant_id) DO UPDATE SET name = EXCLUDED.name")
		if err != nil {
			return err
		}
		defer participantStmt.Close()

		recordStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO sales_records (upload_batch_id, campaign_id, participant_id, amount, sale_date)"+
				" VALUES ($1, $2, $3, $4, $5)")
		if err != nil {
			return err
		}
		defer recordStmt.Close()

		for _, r := range records {
			if _, err := participantStmt.ExecContext(ctx, campaign, r.ParticipantID, r.Name); err != nil {
				return err
			}
			if _, err := recordStmt.ExecContext(ctx, upload, campaign, r.ParticipantID, r.Amount, model.Day(r.Date)); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE upload_batches"+
				" SET status = $1"+
				" WHERE id = $2"+
				"   AND campaign_id = $3",
			model.UploadStatusProcessed,
			upload,
			campaign)
		if err != nil {
			return err
		}
		return expectOne(res)
	})
}

func (store *store) UploadSoftDelete(ctx context.Context, id string) error {
	res, err := store.database.ExecContext(ctx,
		"UPDATE upload_batches"+
			" SET deleted_at = now()"+
			" WHERE id = $1"+
			"   AND deleted_at IS NULL",
		id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (store *store) UploadMarkStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := store.database.ExecContext(ctx,
		"UPDATE upload_batches"+
			" SET status = $1"+
			" WHERE status = $2"+
			"   AND uploaded_at < $3",
		model.UploadStatusFailed,
		model.UploadStatusProcessing,
		olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PartialHistoryGet возвращает продажи всех принятых и не удаленных партий
// кампании в порядке загрузки.
func (store *store) PartialHistoryGet(ctx context.Context, campaign string) ([]model.SalesRecord, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT b.id, b.upload_type, b.uploaded_at, r.participant_id, p.name, r.amount, r.sale_date"+
			" FROM sales_records AS r"+
			" JOIN upload_batches AS b ON b.id = r.upload_batch_id"+
			" JOIN participants AS p ON p.campaign_id = r.campaign_id AND p.participant_id = r.participant_id"+
			" WHERE r.campaign_id = $1"+
			"   AND b.deleted_at IS NULL"+
			"   AND b.status = $2"+
			" ORDER BY b.uploaded_at, b.id, r.id",
		campaign,
		model.UploadStatusProcessed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.SalesRecord
	for rows.Next() {
		var r model.SalesRecord
		err := rows.Scan(&r.UploadID,
			&r.UploadType,
			&r.UploadedAt,
			&r.ParticipantID,
			&r.Name,
			&r.Amount,
			&r.SaleDate)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (store *store) CreditInsert(ctx context.Context, credit model.Credit) error {
	return insertCredit(ctx, store.database, credit)
}

func (store *store) CreditList(ctx context.Context, campaign string) ([]model.Credit, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, schedule_id, participant_id, upload_batch_id, credit_type, status, amount, divergence_reason, description, created_at"+
			" FROM credits"+
			" WHERE schedule_id = $1"+
			" ORDER BY id",
		campaign)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []model.Credit
	for rows.Next() {
		var c model.Credit
		err := rows.Scan(&c.ID,
			&c.Data.Campaign,
			&c.Data.ParticipantID,
			&c.Data.UploadID,
			&c.Data.Type,
			&c.Data.Status,
			&c.Data.Amount,
			&c.Data.DivergenceReason,
			&c.Data.Description,
			&c.Data.CreatedAt)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func (store *store) CreditsDistributed(ctx context.Context, campaign string) (bool, error) {
	return creditsDistributed(ctx, store.database, campaign)
}

// CreditsDistribute записывает выплату. Строка кампании блокируется, чтобы
// две выплаты не прошли одновременно.
func (store *store) CreditsDistribute(ctx context.Context, campaign string, credits []model.Credit) error {
	return store.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM campaigns WHERE id = $1 FOR UPDATE",
			campaign).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoRows
			}
			return err
		}

		distributed, err := creditsDistributed(ctx, tx, campaign)
		if err != nil {
			return err
		}
		if distributed {
			return ErrAlreadyDistributed
		}

		for _, credit := range credits {
			credit.Data.Campaign = campaign
			if err := insertCredit(ctx, tx, credit); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertCredit(ctx context.Context, e execer, credit model.Credit) error {
	_, err := e.ExecContext(ctx,
		"INSERT INTO credits (schedule_id, participant_id, upload_batch_id, credit_type, status, amount, divergence_reason, description)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		credit.Data.Campaign,
		credit.Data.ParticipantID,
		credit.Data.UploadID,
		credit.Data.Type,
		credit.Data.Status,
		credit.Data.Amount,
		credit.Data.DivergenceReason,
		credit.Data.Description)
	return err
}

func creditsDistributed(ctx context.Context, q queryRower, campaign string) (bool, error) {
	var distributed bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM credits"+
			" WHERE schedule_id = $1"+
			"   AND status = $2)",
		campaign,
		model.CreditRecordDistributed).Scan(&distributed)
	return distributed, err
}

func (store *store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (model.Campaign, error) {
	var campaign model.Campaign
	var startsAt, endsAt sql.NullTime
	err := s.Scan(&campaign.ID,
		&campaign.Data.Owner,
		&campaign.Data.Name,
		&startsAt,
		&endsAt,
		&campaign.Data.CreatedAt)
	if err != nil {
		return model.Campaign{}, err
	}
	campaign.Data.StartsAt = startsAt.Time
	campaign.Data.EndsAt = endsAt.Time
	return campaign, nil
}

func scanUpload(s scanner) (model.Upload, error) {
	var upload model.Upload
	var deletedAt sql.NullTime
	err := s.Scan(&upload.ID,
		&upload.Data.Campaign,
		&upload.Data.FileName,
		&upload.Data.StorageKey,
		&upload.Data.UploadType,
		&upload.Data.Status,
		&upload.Data.TotalRows,
		&upload.Data.UploadedAt,
		&deletedAt)
	if err != nil {
		return model.Upload{}, err
	}
	if deletedAt.Valid {
		upload.Data.DeletedAt = &deletedAt.Time
	}
	return upload, nil
}

func nullDate(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: model.Day(t), Valid: true}
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgDuplicateKeyCode
}
