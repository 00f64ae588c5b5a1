package strategy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/barreplay/internal/domain"
)

// Params are raw strategy parameters as they appear in a run file.
type Params map[string]string

// Reader returns a ParamReader over p.
func (p Params) Reader() *ParamReader {
	return &ParamReader{params: p}
}

// ParamReader reads typed values out of Params and collects every parse
// or validation failure, so a strategy can report them all at once.
type ParamReader struct {
	params Params
	errs   []error
}

func (r *ParamReader) raw(key string) (string, bool) {
	v, ok := r.params[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *ParamReader) fail(key, format string, args ...any) {
	r.errs = append(r.errs, &domain.ValidationError{
		Message: fmt.Sprintf("param %s: ", key) + fmt.Sprintf(format, args...),
	})
}

// String returns the value of key, or def when unset.
func (r *ParamReader) String(key, def string) string {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	return v
}

// Int returns key parsed as an integer, or def when unset.
func (r *ParamReader) Int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, "must be an integer, got %q", v)
		return def
	}
	return n
}

// Decimal returns key parsed as a decimal, or def when unset.
func (r *ParamReader) Decimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := domain.ParseDecimal(v)
	if err != nil {
		r.fail(key, "must be a decimal, got %q", v)
		return def
	}
	return d
}

// Bool returns key parsed as a boolean, or def when unset.
func (r *ParamReader) Bool(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, "must be true or false, got %q", v)
		return def
	}
	return b
}

// Check records a validation failure for key when ok is false.
func (r *ParamReader) Check(ok bool, key, msg string) {
	if !ok {
		r.fail(key, "%s", msg)
	}
}

// Err returns all collected failures joined, or nil.
func (r *ParamReader) Err() error {
	return errors.Join(r.errs...)
}
