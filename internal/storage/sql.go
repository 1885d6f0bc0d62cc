package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danieldreier/mcp-practice/internal/flashcard"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type deckRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"not null;size:200"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (deckRecord) TableName() string { return "decks" }

type cardRecord struct {
	ID           string     `gorm:"primaryKey;size:36"`
	DeckID       string     `gorm:"not null;size:36;index"`
	Front        string     `gorm:"not null"`
	Back         string     `gorm:"not null"`
	Favorited    bool       `gorm:"not null"`
	LastReviewed *time.Time `gorm:"default:null"`
	Repetitions  int        `gorm:"not null"`
	EaseFactor   float64    `gorm:"not null"`
	Interval     int        `gorm:"not null"`
	CreatedAt    time.Time  `gorm:"index"`
	UpdatedAt    time.Time
}

func (cardRecord) TableName() string { return "cards" }

type reviewRecord struct {
	ID          string    `gorm:"primaryKey;size:36"`
	CardID      string    `gorm:"not null;size:36;index"`
	Quality     int       `gorm:"not null"`
	ReviewedAt  time.Time `gorm:"not null"`
	Repetitions int
	EaseFactor  float64
	Interval    int
}

func (reviewRecord) TableName() string { return "reviews" }

func deckFromRecord(r deckRecord) flashcard.Deck {
	return flashcard.Deck{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

func cardFromRecord(r cardRecord) flashcard.Card {
	return flashcard.Card{
		ID:           r.ID,
		DeckID:       r.DeckID,
		Front:        r.Front,
		Back:         r.Back,
		Favorited:    r.Favorited,
		LastReviewed: r.LastReviewed,
		Repetitions:  r.Repetitions,
		EaseFactor:   r.EaseFactor,
		Interval:     r.Interval,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func recordFromCard(c flashcard.Card) cardRecord {
	return cardRecord{
		ID:           c.ID,
		DeckID:       c.DeckID,
		Front:        c.Front,
		Back:         c.Back,
		Favorited:    c.Favorited,
		LastReviewed: c.LastReviewed,
		Repetitions:  c.Repetitions,
		EaseFactor:   c.EaseFactor,
		Interval:     c.Interval,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func reviewFromRecord(r reviewRecord) Review {
	return Review{
		ID:          r.ID,
		CardID:      r.CardID,
		Quality:     r.Quality,
		Timestamp:   r.ReviewedAt,
		Repetitions: r.Repetitions,
		EaseFactor:  r.EaseFactor,
		Interval:    r.Interval,
	}
}

// SQLStorage stores decks, cards and reviews in a relational database
// through gorm. Every call is its own statement or transaction, so Save is a
// no-op.
type SQLStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Storage = (*SQLStorage)(nil)

// NewSQLiteStorage opens (or creates) the SQLite database at path.
func NewSQLiteStorage(path string, opts ...Option) (*SQLStorage, error) {
	return OpenSQL(sqlite.Open(path), opts...)
}

// NewPostgresStorage connects to the PostgreSQL database described by dsn.
func NewPostgresStorage(dsn string, opts ...Option) (*SQLStorage, error) {
	return OpenSQL(postgres.Open(dsn), opts...)
}

// OpenSQL opens a gorm connection with the given dialector. Call Load to
// migrate the schema before use.
func OpenSQL(dialector gorm.Dialector, opts ...Option) (*SQLStorage, error) {
	o := buildOptions(opts)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  &zapGormLogger{logger: o.logger.Named("gorm"), level: gormlogger.Warn},
		NowFunc: func() time.Time { return timeNow() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLStorage{db: db, logger: o.logger}, nil
}

// CreateDeck implements Storage.
func (s *SQLStorage) CreateDeck(ctx context.Context, name string) (flashcard.Deck, error) {
	now := timeNow()
	rec := deckRecord{ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return flashcard.Deck{}, fmt.Errorf("failed to create deck: %w", err)
	}
	return deckFromRecord(rec), nil
}

// ListDecks implements Storage.
func (s *SQLStorage) ListDecks(ctx context.Context) ([]flashcard.Deck, error) {
	var recs []deckRecord
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	decks := make([]flashcard.Deck, len(recs))
	for i, r := range recs {
		decks[i] = deckFromRecord(r)
	}
	return decks, nil
}

// CreateCard implements Storage.
func (s *SQLStorage) CreateCard(ctx context.Context, deckID, front, back string) (flashcard.Card, error) {
	var card flashcard.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deckExists(tx, deckID); err != nil {
			return fmt.Errorf("create card in %q: %w", deckID, err)
		}
		card = flashcard.New(uuid.New().String(), deckID, front, back, timeNow())
		rec := recordFromCard(card)
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create card: %w", err)
		}
		card = cardFromRecord(rec)
		return nil
	})
	if err != nil {
		return flashcard.Card{}, err
	}
	return card, nil
}

// GetCard implements Storage.
func (s *SQLStorage) GetCard(ctx context.Context, id string) (flashcard.Card, error) {
	var rec cardRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return flashcard.Card{}, notFound(err, ErrCardNotFound)
	}
	return cardFromRecord(rec), nil
}

// ListCards implements Storage.
func (s *SQLStorage) ListCards(ctx context.Context, deckID string) ([]flashcard.Card, error) {
	db := s.db.WithContext(ctx)
	if deckID != "" {
		if err := deckExists(db, deckID); err != nil {
			return nil, fmt.Errorf("list cards of %q: %w", deckID, err)
		}
		db = db.Where("deck_id = ?", deckID)
	}
	var recs []cardRecord
	if err := db.Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	cards := make([]flashcard.Card, len(recs))
	for i, r := range recs {
		cards[i] = cardFromRecord(r)
	}
	return cards, nil
}

// UpdateCard implements Storage.
func (s *SQLStorage) UpdateCard(ctx context.Context, id string, patch flashcard.Patch) (flashcard.Card, error) {
	var card flashcard.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec cardRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return notFound(err, ErrCardNotFound)
		}
		now := timeNow()
		patch.UpdatedAt = &now
		rec = recordFromCard(cardFromRecord(rec).Apply(patch))
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("failed to update card: %w", err)
		}
		card = cardFromRecord(rec)
		return nil
	})
	if err != nil {
		return flashcard.Card{}, err
	}
	return card, nil
}

// DeleteCard implements Storage.
func (s *SQLStorage) DeleteCard(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&cardRecord{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete card: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrCardNotFound
		}
		if err := tx.Delete(&reviewRecord{}, "card_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete reviews: %w", err)
		}
		return nil
	})
}

// AddReview implements Storage.
func (s *SQLStorage) AddReview(ctx context.Context, cardID string, quality int) (Review, error) {
	var review Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card cardRecord
		if err := tx.First(&card, "id = ?", cardID).Error; err != nil {
			return notFound(err, ErrCardNotFound)
		}
		rec := reviewRecord{
			ID:          uuid.New().String(),
			CardID:      cardID,
			Quality:     quality,
			ReviewedAt:  timeNow(),
			Repetitions: card.Repetitions,
			EaseFactor:  card.EaseFactor,
			Interval:    card.Interval,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to add review: %w", err)
		}
		review = reviewFromRecord(rec)
		return nil
	})
	if err != nil {
		return Review{}, err
	}
	return review, nil
}

// GetCardReviews implements Storage.
func (s *SQLStorage) GetCardReviews(ctx context.Context, cardID string) ([]Review, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&cardRecord{}).Where("id = ?", cardID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("failed to look up card: %w", err)
	}
	if n == 0 {
		return nil, ErrCardNotFound
	}
	var recs []reviewRecord
	if err := db.Where("card_id = ?", cardID).Order("reviewed_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	var reviews []Review
	for _, r := range recs {
		reviews = append(reviews, reviewFromRecord(r))
	}
	return reviews, nil
}

// Load migrates the schema.
func (s *SQLStorage) Load() error {
	if err := s.db.AutoMigrate(&deckRecord{}, &cardRecord{}, &reviewRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	s.logger.Debug("migrated database schema")
	return nil
}

// Save is a no-op; writes are committed as they happen.
func (s *SQLStorage) Save() error {
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

func deckExists(db *gorm.DB, deckID string) error {
	var n int64
	if err := db.Model(&deckRecord{}).Where("id = ?", deckID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up deck: %w", err)
	}
	if n == 0 {
		return ErrDeckNotFound
	}
	return nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// zapGormLogger routes gorm's statement log through zap.
type zapGormLogger struct {
	logger *zap.Logger
	level  gormlogger.LogLevel
}

func (l *zapGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &zapGormLogger{logger: l.logger, level: level}
}

func (l *zapGormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, args...)
	}
}

func (l *zapGormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, args...)
	}
}

func (l *zapGormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, args...)
	}
}

func (l *zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", time.Since(begin)),
	}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.logger.Error("query failed", append(fields, zap.Error(err))...)
	case l.level >= gormlogger.Info:
		l.logger.Debug("query", fields...)
	}
}
