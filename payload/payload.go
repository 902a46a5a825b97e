// Package payload defines the Unicorn record accepted by the API and the
// validation rules applied to it before anything is stored.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

// Unicorn is the validated inbound record. Field order is the canonical
// serialization order.
type Unicorn struct {
	Name    string `json:"name" parquet:"name"`
	Rainbow bool   `json:"rainbow" parquet:"rainbow"`
}

// UnicornResponse is the shape returned by a lookup.
type UnicornResponse struct {
	Unicorn
	ID int64 `json:"id"`
}

// Error kinds reported in FieldError.Type.
const (
	KindMissing     = "missing"
	KindTypeError   = "type_error"
	KindInvalidJSON = "json_invalid"
)

const bodyLoc = "body"

// FieldError describes one failing field.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError carries every field error found in one record.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid payload"
	}
	var b bytes.Buffer
	b.WriteString("invalid payload: ")
	for i, fe := range e.Errors {
		if i > 0 {
			b.WriteString("; ")
		}
		for j, l := range fe.Loc {
			if j > 0 {
				b.WriteByte('.')
			}
			b.WriteString(l)
		}
		b.WriteString(": ")
		b.WriteString(fe.Msg)
	}
	return b.String()
}

// AsValidationError reports whether err wraps a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Decode parses a JSON request body and validates it.
func Decode(body []byte) (Unicorn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Unicorn{}, &ValidationError{Errors: []FieldError{{
			Loc:  []string{bodyLoc},
			Msg:  "invalid json: " + err.Error(),
			Type: KindInvalidJSON,
		}}}
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return Unicorn{}, &ValidationError{Errors: []FieldError{{
			Loc:  []string{bodyLoc},
			Msg:  "invalid json: unexpected data after top-level value",
			Type: KindInvalidJSON,
		}}}
	}

	fields, ok := raw.(map[string]any)
	if !ok {
		return Unicorn{}, &ValidationError{Errors: []FieldError{{
			Loc:  []string{bodyLoc},
			Msg:  "value is not a valid dict",
			Type: KindTypeError,
		}}}
	}
	return Validate(fields)
}

// Validate checks fields against the Unicorn schema. All failing fields are
// reported, in schema order.
func Validate(fields map[string]any) (Unicorn, error) {
	var (
		u    Unicorn
		errs []FieldError
	)

	if v, fe := textField(fields, "name"); fe != nil {
		errs = append(errs, *fe)
	} else {
		u.Name = v
	}

	if v, fe := boolField(fields, "rainbow"); fe != nil {
		errs = append(errs, *fe)
	} else {
		u.Rainbow = v
	}

	if len(errs) > 0 {
		return Unicorn{}, &ValidationError{Errors: errs}
	}
	return u, nil
}

func lookup(fields map[string]any, name string) (any, *FieldError) {
	v, ok := fields[name]
	if !ok {
		return nil, &FieldError{Loc: []string{bodyLoc, name}, Msg: "field required", Type: KindMissing}
	}
	if v == nil {
		return nil, &FieldError{Loc: []string{bodyLoc, name}, Msg: "none is not an allowed value", Type: KindTypeError}
	}
	return v, nil
}

func textField(fields map[string]any, name string) (string, *FieldError) {
	v, fe := lookup(fields, name)
	if fe != nil {
		return "", fe
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	}
	return "", &FieldError{Loc: []string{bodyLoc, name}, Msg: "str type expected", Type: KindTypeError}
}

// boolField accepts only a genuine boolean; numbers and strings are never coerced.
func boolField(fields map[string]any, name string) (bool, *FieldError) {
	v, fe := lookup(fields, name)
	if fe != nil {
		return false, fe
	}
	b, ok := v.(bool)
	if !ok {
		return false, &FieldError{Loc: []string{bodyLoc, name}, Msg: "value could not be parsed to a boolean", Type: KindTypeError}
	}
	return b, nil
}
