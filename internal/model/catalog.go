package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeRetail    Mode = "retail"
	ModeWholesale Mode = "wholesale"
)

func (m Mode) Valid() bool {
	return m == ModeRetail || m == ModeWholesale
}

// CatalogItem is a sellable unit mirrored from the server catalog.
// Barcode is not unique across items.
type CatalogItem struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Brand             string          `json:"brand,omitempty"`
	DosageForm        string          `json:"dosage_form,omitempty"`
	Unit              string          `json:"unit,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Cost              decimal.Decimal `json:"cost"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	ExpiryDate        *Date           `json:"expiry_date,omitempty"`
	Barcode           *string         `json:"barcode,omitempty"`
	GTIN              string          `json:"gtin,omitempty"`
	BatchNumber       string          `json:"batch_number,omitempty"`
	SerialNumber      string          `json:"serial_number,omitempty"`
	UpdatedAt         *Date           `json:"updated_at,omitempty"`
}

func (i *CatalogItem) LowOnStock() bool {
	return i.Stock <= i.LowStockThreshold
}

// CustomBarcode remaps a scanned code onto a specific catalog entry.
type CustomBarcode struct {
	Code      string    `json:"code"`
	ItemID    int64     `json:"item_id"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// GS1Data is the structured record produced by a GS1 parser.
type GS1Data struct {
	GTIN         string `json:"gtin,omitempty"`
	BatchNumber  string `json:"batch_number,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	ExpiryDate   *Date  `json:"expiry_date,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Date accepts both calendar dates and full timestamps as sent by the server.
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date {
	return &Date{Time: t}
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	h, m, s := d.Clock()
	if h == 0 && m == 0 && s == 0 && d.Nanosecond() == 0 {
		return json.Marshal(d.Format(time.DateOnly))
	}
	return json.Marshal(d.Format(time.RFC3339Nano))
}
