// Package sequence allocates human-readable document numbers of the form
// PREFIX-MM/YY/NNNN, one counter per (prefix, year, month) bucket.
package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Known document number prefixes.
const (
	PrefixInvoice         = "INV"
	PrefixEstimate        = "EST"
	PrefixPurchaseOrder   = "PO"
	PrefixDeliveryNote    = "DN"
	PrefixCreditNote      = "CN"
	PrefixStatement       = "ST"
	PrefixPurchaseInvoice = "PI"
	PrefixDivers          = "DIV"
)

// PadWidth is the zero-padded width of the sequence component.
const PadWidth = 4

// ErrMalformedNumber indicates a document number that does not match the
// PREFIX-MM/YY/NNNN layout.
var ErrMalformedNumber = errors.New("sequence: malformed document number")

// Components holds the parsed parts of a document number.
type Components struct {
	Prefix string
	Month  int
	Year   int // two-digit year as printed
	Seq    int64
}

// Format renders a document number for the given bucket and value.
func Format(prefix string, date time.Time, n int64) string {
	return fmt.Sprintf("%s-%02d/%02d/%0*d", prefix, int(date.Month()), date.Year()%100, PadWidth, n)
}

// Parse splits a document number into its components.
func Parse(number string) (Components, error) {
	dash := strings.IndexByte(number, '-')
	if dash <= 0 {
		return Components{}, ErrMalformedNumber
	}
	parts := strings.Split(number[dash+1:], "/")
	if len(parts) != 3 {
		return Components{}, ErrMalformedNumber
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return Components{}, ErrMalformedNumber
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || year < 0 {
		return Components{}, ErrMalformedNumber
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seq < 1 {
		return Components{}, ErrMalformedNumber
	}
	return Components{Prefix: number[:dash], Month: month, Year: year, Seq: seq}, nil
}
