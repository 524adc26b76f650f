package scan

import (
	"strconv"
	"strings"

	"github.com/fekuna/omnipos-offline/internal/model"
)

const DefaultStructuredPrefix = "PHARM"

// StructuredCode is an internal PREFIX-MODE-ID label printed by the POS.
type StructuredCode struct {
	Mode model.Mode
	ID   int64
}

// ParseStructured recognises codes such as "PHARM-RETAIL-42".
func ParseStructured(code, prefix string) (StructuredCode, bool) {
	parts := strings.Split(strings.TrimSpace(code), "-")
	if len(parts) != 3 || !strings.EqualFold(parts[0], prefix) {
		return StructuredCode{}, false
	}
	mode := model.Mode(strings.ToLower(parts[1]))
	if !mode.Valid() {
		return StructuredCode{}, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return StructuredCode{}, false
	}
	return StructuredCode{Mode: mode, ID: id}, true
}

// FormatStructured renders the label for an item.
func FormatStructured(prefix string, mode model.Mode, id int64) string {
	return prefix + "-" + strings.ToUpper(string(mode)) + "-" + strconv.FormatInt(id, 10)
}

// GS1Parser extracts GTIN, batch, expiry and serial data from a GS1 barcode.
type GS1Parser interface {
	Parse(code string) (*model.GS1Data, bool)
}
