package main

import (
	"time"

	"gorm.io/gorm"
)

// ArchivedSale mirrors one settled sale from the event stream. Sequence is the
// stream sequence, which makes replays idempotent.
type ArchivedSale struct {
	Sequence         int64  `gorm:"primaryKey;autoIncrement:false"`
	Collection       string `gorm:"index;size:40"`
	TokenID          string `gorm:"index"`
	Seller           string `gorm:"size:40"`
	Buyer            string `gorm:"size:40"`
	Price            string
	PaymentToken     string `gorm:"size:40"`
	Fee              string
	RoyaltyAmount    string
	RoyaltyRecipient string `gorm:"size:40"`
	SaleType         string `gorm:"index"`
	LedgerIndex      uint64
	SoldAt           int64 `gorm:"index"`
	ArchivedAt       time.Time
}

// ArchivedListingEvent records listing lifecycle events (created, cancelled,
// price updated).
type ArchivedListingEvent struct {
	Sequence     int64  `gorm:"primaryKey;autoIncrement:false"`
	EventType    string `gorm:"index"`
	Collection   string `gorm:"index;size:40"`
	TokenID      string `gorm:"index"`
	Seller       string `gorm:"size:40"`
	Price        string
	ExpiresAt    int64
	PrivateBuyer string `gorm:"size:40"`
	LedgerIndex  uint64
	ArchivedAt   time.Time
}

// ArchivedOfferEvent records offer lifecycle events (created, cancelled,
// reclaimed).
type ArchivedOfferEvent struct {
	Sequence    int64  `gorm:"primaryKey;autoIncrement:false"`
	EventType   string `gorm:"index"`
	Collection  string `gorm:"index;size:40"`
	TokenID     string `gorm:"index"`
	Bidder      string `gorm:"size:40"`
	Amount      string
	ExpiresAt   int64
	LedgerIndex uint64
	ArchivedAt  time.Time
}

// StreamCursor persists the last applied stream sequence so the consumer can
// resume after a restart. A single row with ID 1 exists.
type StreamCursor struct {
	ID       uint `gorm:"primaryKey"`
	Sequence int64
}

// ExportManifest describes one Parquet export artefact and its checksum.
type ExportManifest struct {
	ID           string `gorm:"primaryKey;size:36"`
	Path         string
	RowCount     int
	FromSequence int64
	ToSequence   int64 `gorm:"index"`
	Checksum     string
	CreatedAt    time.Time
}

// AutoMigrate performs all schema migrations for the archiver.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ArchivedSale{},
		&ArchivedListingEvent{},
		&ArchivedOfferEvent{},
		&StreamCursor{},
		&ExportManifest{},
	)
}
