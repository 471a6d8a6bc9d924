package storage

import (
	"context"
	"fmt"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultRecordsTable = "scraped_bond_isins"

type PostgresConfig struct {
	DSN          string
	RecordsTable string
	OrderColumn  string
	MaxOpenConns int
}

// PostgresRepository is the primary backing source. It serves the full-refresh
// pull over the records table, accepts local writes, and reads the
// bookrunner association tables.
type PostgresRepository struct {
	db          *gorm.DB
	table       string
	orderColumn string
}

// bondRow is the write shape of a record in the records table.
type bondRow struct {
	ID              string    `gorm:"column:id;primaryKey"`
	ISIN            string    `gorm:"column:isin;index"`
	Issuer          string    `gorm:"column:issuer"`
	Currency        string    `gorm:"column:currency"`
	Amount          float64   `gorm:"column:amount"`
	Type            string    `gorm:"column:type"`
	MinSize         string    `gorm:"column:min_size"`
	Status          string    `gorm:"column:status"`
	ListingTrigger  string    `gorm:"column:listing_trigger"`
	Date            string    `gorm:"column:date"`
	Time            string    `gorm:"column:time"`
	TriggeredDate   string    `gorm:"column:triggered_date"`
	TriggeredTime   string    `gorm:"column:triggered_time"`
	SubmittedDate   string    `gorm:"column:submitted_date"`
	SubmittedTime   string    `gorm:"column:submitted_time"`
	SubmissionPlace string    `gorm:"column:submission_place"`
	TurnaroundTime  string    `gorm:"column:turnaround_time"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// associationRow is one bookrunner-to-deal link from the join query.
type associationRow struct {
	Bookrunner string
	ISIN       string
	Issuer     *string
	Currency   *string
	CreatedAt  time.Time
	EmailAt    *time.Time
}

const associationsQuery = `
	SELECT b.name AS bookrunner, i.isin, i.issuer, i.currency, i.created_at, i.email_at
	FROM bookrunners b
	JOIN bond_bookrunners bb ON bb.bookrunner_id = b.id
	JOIN bond_isins i ON i.id = bb.bond_isin_id
`

func NewPostgresRepository(cfg PostgresConfig) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	return NewPostgresRepositoryFromDB(db, cfg.RecordsTable, cfg.OrderColumn), nil
}

// NewPostgresRepositoryFromDB wraps an existing gorm handle.
func NewPostgresRepositoryFromDB(db *gorm.DB, table, orderColumn string) *PostgresRepository {
	if table == "" {
		table = DefaultRecordsTable
	}
	if orderColumn == "" {
		orderColumn = "created_at"
	}
	return &PostgresRepository{db: db, table: table, orderColumn: orderColumn}
}

// Ensure PostgresRepository implements the source interfaces
var _ repository.RecordSource = (*PostgresRepository)(nil)
var _ repository.RecordWriter = (*PostgresRepository)(nil)
var _ repository.AssociationSource = (*PostgresRepository)(nil)

func (r *PostgresRepository) Name() string {
	return "postgres:" + r.table
}

// Migrate creates or extends the records table.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).Table(r.table).AutoMigrate(&bondRow{})
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// FetchAll returns every row of the records table, newest first, untyped.
func (r *PostgresRepository) FetchAll(ctx context.Context) ([]model.RawRecord, error) {
	var rows []map[string]interface{}
	err := r.db.WithContext(ctx).
		Table(r.table).
		Order(clause.OrderByColumn{Column: clause.Column{Name: r.orderColumn}, Desc: true}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.table, err)
	}

	out := make([]model.RawRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.RawRecord(row))
	}
	return out, nil
}

// SaveRecord upserts the record by ID.
func (r *PostgresRepository) SaveRecord(ctx context.Context, rec model.BondRecord) error {
	row := toRow(rec)
	err := r.db.WithContext(ctx).
		Table(r.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(updatableColumns),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	return nil
}

var updatableColumns = []string{
	"isin", "issuer", "currency", "amount", "type", "min_size", "status", "listing_trigger",
	"date", "time", "triggered_date", "triggered_time", "submitted_date", "submitted_time",
	"submission_place", "turnaround_time", "updated_at",
}

// FetchAssociations reads the bookrunner association tables.
func (r *PostgresRepository) FetchAssociations(ctx context.Context) ([]model.BookrunnerAssociation, error) {
	var rows []associationRow
	if err := r.db.WithContext(ctx).Raw(associationsQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch associations: %w", err)
	}

	out := make([]model.BookrunnerAssociation, 0, len(rows))
	for _, row := range rows {
		a := model.BookrunnerAssociation{
			Bookrunner: row.Bookrunner,
			ISIN:       row.ISIN,
			CreatedAt:  row.CreatedAt,
			ObservedAt: row.EmailAt,
		}
		if row.Issuer != nil {
			a.Issuer = *row.Issuer
		}
		if row.Currency != nil {
			a.Currency = *row.Currency
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec model.BondRecord) bondRow {
	return bondRow{
		ID:              rec.ID,
		ISIN:            rec.ISIN,
		Issuer:          rec.Issuer,
		Currency:        rec.Currency,
		Amount:          rec.Amount,
		Type:            rec.Type,
		MinSize:         rec.MinimumSize,
		Status:          string(rec.Status),
		ListingTrigger:  rec.ListingTrigger,
		Date:            rec.Date,
		Time:            rec.Time,
		TriggeredDate:   rec.TriggeredDate,
		TriggeredTime:   rec.TriggeredTime,
		SubmittedDate:   rec.SubmittedDate,
		SubmittedTime:   rec.SubmittedTime,
		SubmissionPlace: rec.SubmissionPlace,
		TurnaroundTime:  rec.TurnaroundTime,
	}
}
