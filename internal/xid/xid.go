package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a time-ordered identifier with the given prefix.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

// Invoice returns an invoice number derived from the sale timestamp. The
// random suffix keeps two sales in the same millisecond apart.
func Invoice(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("INV-%d-%s", at.UnixMilli(), suffix)
}
