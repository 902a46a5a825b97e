package encoder

import (
	"context"
	"fmt"
)

// Encoder converts one typed record into the bytes stored for it.
//
// Implementations must be safe for concurrent use unless documented otherwise.
type Encoder[iType any] interface {
	Encode(ctx context.Context, item iType) (data []byte, err error)
	FileExtension() string
	ContentType() string
}

// Supported storage formats.
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// New returns the encoder for format. compression only applies to parquet.
func New[iType any](format, compression string) (Encoder[iType], error) {
	switch format {
	case "", FormatJSON:
		return JSONEncoder[iType]{}, nil
	case FormatParquet:
		e := ParquetEncoder[iType]{Compression: compression}
		if err := e.validate(); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unsupported storage format: %q", format)
	}
}

func checkCtx(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
