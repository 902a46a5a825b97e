package encoder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// ParquetEncoder writes each record as a single-row parquet file, so stored
// objects can be queried in place by an analytic engine.
type ParquetEncoder[iType any] struct {
	// Compression (optional): "", "snappy", "gzip", "zstd"
	Compression string
}

func (e ParquetEncoder[iType]) FileExtension() string { return ".parquet" }

func (e ParquetEncoder[iType]) ContentType() string { return "application/vnd.apache.parquet" }

func (e ParquetEncoder[iType]) options() ([]parquet.WriterOption, error) {
	switch e.Compression {
	case "":
		// no compression
		return nil, nil
	case "snappy":
		return []parquet.WriterOption{parquet.Compression(&parquet.Snappy)}, nil
	case "gzip":
		return []parquet.WriterOption{parquet.Compression(&parquet.Gzip)}, nil
	case "zstd":
		return []parquet.WriterOption{parquet.Compression(&parquet.Zstd)}, nil
	default:
		return nil, fmt.Errorf("unsupported parquet compression: %q", e.Compression)
	}
}

func (e ParquetEncoder[iType]) validate() error {
	_, err := e.options()
	return err
}

func (e ParquetEncoder[iType]) Encode(ctx context.Context, item iType) ([]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	options, err := e.options()
	if err != nil {
		return nil, err
	}

	output := &bytes.Buffer{}
	w := parquet.NewGenericWriter[iType](output, options...)

	if _, err := w.Write([]iType{item}); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}
