package ingester

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/coral-mesh/profilestore/internal/objectstore"
)

// writerProperties builds the Parquet writer configuration spec §4.11
// step 2-3 calls for: version-2 data pages, Snappy page compression, and
// dictionary encoding for every string-typed meta/label column, grounded
// on the teacher corpus's per-column WithXxxFor writer-property pattern.
func writerProperties() *parquet.WriterProperties {
	opts := []parquet.WriterProperty{
		parquet.WithVersion(parquet.V2_LATEST),
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(false),
	}
	for _, col := range dictionaryColumns() {
		opts = append(opts, parquet.WithDictionaryFor(col, true))
	}
	return parquet.NewWriterProperties(opts...)
}

// encodeParquet serializes a single row-group record into a complete
// Parquet file body (spec §4.11 steps 1-3).
func encodeParquet(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer

	fw, err := pqarrow.NewFileWriter(schema, &buf, writerProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("ingester: new parquet writer: %w", err)
	}
	if err := fw.Write(record); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("ingester: write record batch: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("ingester: close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// persistKey builds the date-partitioned object key spec §4.11 step 4 and
// §6 "Persisted layout" require: date=YYYY-MM-DD/{unix_seconds}.parquet.
func persistKey(now time.Time) string {
	return fmt.Sprintf("date=%s/%d.parquet", now.UTC().Format("2006-01-02"), now.Unix())
}

// persist builds and writes one Parquet file for record to the object
// store. Failures are the caller's responsibility to log; per spec §4.11
// and §7 this layer never re-queues a failed batch.
func persist(ctx context.Context, store objectstore.Store, schema *arrow.Schema, record arrow.Record, now time.Time) error {
	body, err := encodeParquet(schema, record)
	if err != nil {
		return err
	}
	return store.Put(ctx, persistKey(now), body)
}
