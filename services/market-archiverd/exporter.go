package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

// Exporter materialises archived sales into Parquet files for downstream
// analytics. Each run covers the sales archived since the previous export and
// records a manifest row with the artefact checksum.
type Exporter struct {
	store  *Store
	dir    string
	logger *slog.Logger
}

func NewExporter(store *Store, dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, dir: dir, logger: logger}
}

type salesParquetRow struct {
	Sequence         int64  `parquet:"name=sequence, type=INT64"`
	Collection       string `parquet:"name=collection, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenID          string `parquet:"name=token_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seller           string `parquet:"name=seller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer            string `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price            string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaymentToken     string `parquet:"name=payment_token, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fee              string `parquet:"name=fee, type=BYTE_ARRAY, convertedtype=UTF8"`
	RoyaltyAmount    string `parquet:"name=royalty_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	RoyaltyRecipient string `parquet:"name=royalty_recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	SaleType         string `parquet:"name=sale_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	LedgerIndex      int64  `parquet:"name=ledger_index, type=INT64"`
	SoldAt           int64  `parquet:"name=sold_at, type=INT64"`
}

// Run exports sales archived since the last export. It returns the manifest
// for the new artefact, or nil when there was nothing to export.
func (e *Exporter) Run() (*ExportManifest, error) {
	since, err := e.store.LastExportedSequence()
	if err != nil {
		return nil, fmt.Errorf("load export watermark: %w", err)
	}
	sales, err := e.store.SalesAfter(since)
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}
	if len(sales) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure export dir: %w", err)
	}
	from := sales[0].Sequence
	to := sales[len(sales)-1].Sequence
	id := uuid.New()
	path := filepath.Join(e.dir, fmt.Sprintf("sales_%d_%d_%s.parquet", from, to, id.String()))

	if err := writeSalesParquet(path, sales); err != nil {
		return nil, err
	}
	checksum, err := fileChecksum(path)
	if err != nil {
		return nil, err
	}

	manifest := &ExportManifest{
		ID:           id.String(),
		Path:         path,
		RowCount:     len(sales),
		FromSequence: from,
		ToSequence:   to,
		Checksum:     checksum,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.RecordManifest(manifest); err != nil {
		return nil, fmt.Errorf("record manifest: %w", err)
	}
	e.logger.Info("exported sales", "path", path, "rows", len(sales), "checksum", checksum)
	return manifest, nil
}

func writeSalesParquet(path string, sales []ArchivedSale) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(salesParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, sale := range sales {
		row := &salesParquetRow{
			Sequence:         sale.Sequence,
			Collection:       sale.Collection,
			TokenID:          sale.TokenID,
			Seller:           sale.Seller,
			Buyer:            sale.Buyer,
			Price:            sale.Price,
			PaymentToken:     sale.PaymentToken,
			Fee:              sale.Fee,
			RoyaltyAmount:    sale.RoyaltyAmount,
			RoyaltyRecipient: sale.RoyaltyRecipient,
			SaleType:         sale.SaleType,
			LedgerIndex:      int64(sale.LedgerIndex),
			SoldAt:           sale.SoldAt,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artefact: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
