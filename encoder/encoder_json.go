package encoder

import (
	"bytes"
	"context"
	"encoding/json"
)

// JSONEncoder writes compact UTF-8 JSON in struct field order, without HTML
// escaping or a trailing newline.
type JSONEncoder[iType any] struct{}

func (JSONEncoder[iType]) FileExtension() string { return ".json" }

func (JSONEncoder[iType]) ContentType() string { return "application/json" }

func (JSONEncoder[iType]) Encode(ctx context.Context, item iType) ([]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(item); err != nil {
		return nil, err
	}
	// json.Encoder always terminates with '\n'.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
