package store

// SchemaVersion is bumped whenever a collection or index is added.
const SchemaVersion = 4

const (
	Items              = "items"
	WholesaleItems     = "wholesaleItems"
	Customers          = "customers"
	WholesaleCustomers = "wholesaleCustomers"
	Suppliers          = "suppliers"
	Sales              = "sales"
	Receipts           = "receipts"
	Cart               = "cart"
	WholesaleCart      = "wholesaleCart"
	DispensingLog      = "dispensingLog"
	PendingActions     = "pendingActions"
	SyncMetadata       = "syncMetadata"
	CustomBarcodes     = "customBarcodes"
)

type Index struct {
	Name   string
	Field  string
	Unique bool
}

type Collection struct {
	Name          string
	KeyPath       string
	AutoIncrement bool
	Indexes       []Index
}

func idx(fields ...string) []Index {
	out := make([]Index, 0, len(fields))
	for _, f := range fields {
		out = append(out, Index{Name: f, Field: f})
	}
	return out
}

// Schema lists every collection at SchemaVersion.
var Schema = []Collection{
	{Name: Items, KeyPath: "id", Indexes: idx("name", "brand", "dosage_form", "updated_at", "barcode")},
	{Name: WholesaleItems, KeyPath: "id", Indexes: idx("name", "brand", "updated_at", "barcode")},
	{Name: Customers, KeyPath: "id", Indexes: idx("name", "phone")},
	{Name: WholesaleCustomers, KeyPath: "id", Indexes: idx("name")},
	{Name: Suppliers, KeyPath: "id", Indexes: idx("name")},
	{Name: Sales, KeyPath: "id", AutoIncrement: true, Indexes: idx("created_at", "synced")},
	{Name: Receipts, KeyPath: "id", AutoIncrement: true, Indexes: []Index{
		{Name: "receipt_id", Field: "receipt_id", Unique: true},
		{Name: "synced", Field: "synced"},
	}},
	{Name: Cart, KeyPath: "id", AutoIncrement: true, Indexes: idx("item_id", "user_id")},
	{Name: WholesaleCart, KeyPath: "id", AutoIncrement: true, Indexes: idx("item_id", "user_id")},
	{Name: DispensingLog, KeyPath: "id", AutoIncrement: true, Indexes: idx("synced")},
	{Name: PendingActions, KeyPath: "id", AutoIncrement: true, Indexes: idx("timestamp", "priority", "synced")},
	{Name: SyncMetadata, KeyPath: "key"},
	{Name: CustomBarcodes, KeyPath: "code", Indexes: idx("item_id", "mode")},
}
