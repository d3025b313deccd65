package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"nftmarket/native/market"
)

// Store wraps the archive database.
type Store struct {
	db *gorm.DB
}

// OpenStore connects to the configured backend and applies migrations.
func OpenStore(cfg DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// ApplyEvent archives one stream event. Replays of a sequence already applied
// are silently skipped.
func (s *Store) ApplyEvent(evt StreamEvent) error {
	if evt.Event == nil {
		return nil
	}
	attrs := evt.Event.Attributes
	now := time.Now().UTC()

	switch evt.Type {
	case market.EventTypeSold:
		row := ArchivedSale{
			Sequence:         evt.Sequence,
			Collection:       attrs["collection"],
			TokenID:          attrs["tokenId"],
			Seller:           attrs["seller"],
			Buyer:            attrs["buyer"],
			Price:            attrs["price"],
			PaymentToken:     attrs["paymentToken"],
			Fee:              attrs["fee"],
			RoyaltyAmount:    attrs["royaltyAmount"],
			RoyaltyRecipient: attrs["royaltyRecipient"],
			SaleType:         attrs["saleType"],
			LedgerIndex:      attrUint64(attrs, "ledgerIndex"),
			SoldAt:           attrInt64(attrs, "soldAt"),
			ArchivedAt:       now,
		}
		return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	case market.EventTypeListingCreated, market.EventTypeListingCancelled, market.EventTypeListingPriceUpdated:
		price := attrs["price"]
		if updated, ok := attrs["newPrice"]; ok {
			price = updated
		}
		row := ArchivedListingEvent{
			Sequence:     evt.Sequence,
			EventType:    evt.Type,
			Collection:   attrs["collection"],
			TokenID:      attrs["tokenId"],
			Seller:       attrs["seller"],
			Price:        price,
			ExpiresAt:    attrInt64(attrs, "expiresAt"),
			PrivateBuyer: attrs["privateBuyer"],
			LedgerIndex:  attrUint64(attrs, "ledgerIndex"),
			ArchivedAt:   now,
		}
		return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	case market.EventTypeOfferCreated, market.EventTypeOfferCancelled, market.EventTypeOfferReclaimed:
		row := ArchivedOfferEvent{
			Sequence:    evt.Sequence,
			EventType:   evt.Type,
			Collection:  attrs["collection"],
			TokenID:     attrs["tokenId"],
			Bidder:      attrs["bidder"],
			Amount:      attrs["amount"],
			ExpiresAt:   attrInt64(attrs, "expiresAt"),
			LedgerIndex: attrUint64(attrs, "ledgerIndex"),
			ArchivedAt:  now,
		}
		return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	default:
		// Unknown event types are skipped so the cursor keeps advancing.
		return nil
	}
}

// Cursor returns the last applied stream sequence, zero on a fresh archive.
func (s *Store) Cursor() (int64, error) {
	var cursor StreamCursor
	err := s.db.First(&cursor, 1).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return cursor.Sequence, nil
}

// SetCursor records the last applied stream sequence.
func (s *Store) SetCursor(sequence int64) error {
	cursor := StreamCursor{ID: 1, Sequence: sequence}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sequence"}),
	}).Create(&cursor).Error
}

// SalesAfter returns archived sales with a sequence strictly greater than the
// given value, oldest first.
func (s *Store) SalesAfter(sequence int64) ([]ArchivedSale, error) {
	var sales []ArchivedSale
	err := s.db.Where("sequence > ?", sequence).Order("sequence ASC").Find(&sales).Error
	return sales, err
}

// LastExportedSequence returns the highest sequence covered by a previous
// export, zero when nothing has been exported yet.
func (s *Store) LastExportedSequence() (int64, error) {
	var manifest ExportManifest
	err := s.db.Order("to_sequence DESC").First(&manifest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return manifest.ToSequence, nil
}

// RecordManifest persists the manifest row for a completed export.
func (s *Store) RecordManifest(manifest *ExportManifest) error {
	return s.db.Create(manifest).Error
}

// Manifests returns all export manifests, newest first.
func (s *Store) Manifests() ([]ExportManifest, error) {
	var manifests []ExportManifest
	err := s.db.Order("to_sequence DESC").Find(&manifests).Error
	return manifests, err
}

func attrInt64(attrs map[string]string, key string) int64 {
	value, err := strconv.ParseInt(attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func attrUint64(attrs map[string]string, key string) uint64 {
	value, err := strconv.ParseUint(attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return value
}
