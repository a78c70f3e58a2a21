package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Document number prefixes.
const (
	PrefixInvoice  = "INV"
	PrefixPayment  = "PAY"
	PrefixPO       = "PO"
	PrefixReceipt  = "GRN"
	PrefixClaim    = "CLM"
	PrefixPayout   = "OUT"
	PrefixImport   = "imp"
	PrefixReconRun = "run"
)

// New returns a random entity ID.
func New() string {
	return uuid.NewString()
}

// NewSortable returns a time-ordered ID like "imp_2Nv1...". Used for import
// batches and reconciliation runs so that listing by ID follows creation order.
func NewSortable(prefix string) string {
	return prefix + "_" + ksuid.New().String()
}

// FormatDocNo returns a document number like "INV-2025-01-0001".
func FormatDocNo(prefix string, year, month, seq int) string {
	return fmt.Sprintf("%s-%04d-%02d-%04d", prefix, year, month, seq)
}

// DocNoPattern returns the SQL LIKE pattern matching every number of a prefix/month.
func DocNoPattern(prefix string, year, month int) string {
	return fmt.Sprintf("%s-%04d-%02d-%%", prefix, year, month)
}

// ParseDocNo parses "INV-2025-01-0001" into its parts.
func ParseDocNo(no string) (prefix string, year, month, seq int, err error) {
	parts := strings.Split(no, "-")
	if len(parts) != 4 || parts[0] == "" {
		return "", 0, 0, 0, fmt.Errorf("invalid document number format: %q", no)
	}

	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("invalid year in document number %q: %w", no, err)
	}

	month, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("invalid month in document number %q: %w", no, err)
	}
	if month < 1 || month > 12 {
		return "", 0, 0, 0, fmt.Errorf("month out of range in document number %q", no)
	}

	seq, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("invalid sequence in document number %q: %w", no, err)
	}

	return parts[0], year, month, seq, nil
}

// NextSeq returns one past the highest sequence among numbers of the given
// prefix and month. Unparseable or foreign numbers are ignored.
func NextSeq(existing []string, prefix string, year, month int) int {
	maxSeq := 0
	for _, no := range existing {
		p, y, m, seq, err := ParseDocNo(no)
		if err != nil || p != prefix || y != year || m != month {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1
}
