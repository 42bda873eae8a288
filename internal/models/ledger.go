package models

import (
	"strconv"
	"strings"
)

// Status is the reconciliation state of a ledger row.
type Status string

const (
	StatusNotUploaded Status = "Not Uploaded"
	StatusUploaded    Status = "Uploaded"
	StatusUnmatched   Status = "Unmatched"
)

// legacyUploadedMarkers are the values older sheets used to flag an uploaded row.
var legacyUploadedMarkers = map[string]struct{}{
	string(StatusUploaded): {},
	"TRUE":                 {},
}

// IsUploaded reports whether the status counts as already uploaded.
func (s Status) IsUploaded() bool {
	_, ok := legacyUploadedMarkers[strings.TrimSpace(string(s))]
	return ok
}

// Ledger column names. LedgerColumns fixes their order in a freshly created sheet.
const (
	ColShipFromCompany  = "ship_from_company_name"
	ColShipFromContact  = "ship_from_contact_person"
	ColShipFromNumber   = "ship_from_contact_number"
	ColShipFromAddress  = "ship_from_address"
	ColShipToCompany    = "ship_to_company_name"
	ColShipToContact    = "ship_to_contact_person"
	ColShipToNumber     = "ship_to_contact_number"
	ColShipToAddress    = "ship_to_address"
	ColCarrierName      = "carrier_name"
	ColSCAC             = "scac"
	ColProNumber        = "pro_number"
	ColOrderNumber      = "order_number"
	ColShipmentID       = "shipment_id"
	ColPallets          = "pallets"
	ColCartons          = "cartons"
	ColWeight           = "weight"
	ColPDFLink          = "pdf_link"
	ColFileName         = "file_name"
	ColCurrentDatetime  = "current_datetime"
	ColReviewed         = "reviewed"
	ColStatus           = "status"
	ReviewedFalse       = "FALSE"
	LedgerTimestampForm = "2006-01-02 15:04:05"
)

var LedgerColumns = []string{
	ColShipFromCompany, ColShipFromContact, ColShipFromNumber, ColShipFromAddress,
	ColShipToCompany, ColShipToContact, ColShipToNumber, ColShipToAddress,
	ColCarrierName, ColSCAC, ColProNumber,
	ColOrderNumber, ColShipmentID, ColPallets, ColCartons, ColWeight,
	ColPDFLink, ColFileName, ColCurrentDatetime, ColReviewed, ColStatus,
}

// LinkedRecord is a shipment whose page PDF has been uploaded to the blob store.
type LinkedRecord struct {
	Shipment Shipment
	PDFLink  string
	FileName string
}

// LedgerRow is one persisted ledger line. Fields holds every column as text,
// including columns this service does not know about, so rewrites never drop data.
type LedgerRow struct {
	Fields map[string]string
}

// NewLedgerRow flattens a linked record into ledger columns.
func NewLedgerRow(rec LinkedRecord) LedgerRow {
	s := rec.Shipment
	o := s.CustomerOrderInformation
	return LedgerRow{Fields: map[string]string{
		ColShipFromCompany: text(s.ShipFrom.CompanyName),
		ColShipFromContact: text(s.ShipFrom.ContactPerson),
		ColShipFromNumber:  text(s.ShipFrom.ContactNumber),
		ColShipFromAddress: text(s.ShipFrom.Address),
		ColShipToCompany:   text(s.ShipTo.CompanyName),
		ColShipToContact:   text(s.ShipTo.ContactPerson),
		ColShipToNumber:    text(s.ShipTo.ContactNumber),
		ColShipToAddress:   text(s.ShipTo.Address),
		ColCarrierName:     text(s.CarrierInfo.CarrierName),
		ColSCAC:            text(s.CarrierInfo.SCAC),
		ColProNumber:       text(s.CarrierInfo.ProNumber),
		ColOrderNumber:     o.OrderNumber,
		ColShipmentID:      o.ShipmentID,
		ColPallets:         intText(o.Pallets),
		ColCartons:         intText(o.Cartons),
		ColWeight:          weightText(o),
		ColPDFLink:         rec.PDFLink,
		ColFileName:        rec.FileName,
	}}
}

// LedgerRowFromValues maps one sheet row onto the header.
func LedgerRowFromValues(header, values []string) LedgerRow {
	fields := make(map[string]string, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		if i < len(values) {
			fields[col] = values[i]
		} else {
			fields[col] = ""
		}
	}
	return LedgerRow{Fields: fields}
}

// IsBlank reports whether every cell of the row is empty. Sheets returns such
// rows for gaps left between data rows.
func (r LedgerRow) IsBlank() bool {
	for _, v := range r.Fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Values renders the row in header order.
func (r LedgerRow) Values(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = r.Fields[col]
	}
	return out
}

func (r LedgerRow) Get(col string) string {
	return r.Fields[col]
}

// Set returns a copy of the row with col replaced.
func (r LedgerRow) Set(col, value string) LedgerRow {
	fields := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[col] = value
	return LedgerRow{Fields: fields}
}

func (r LedgerRow) OrderNumber() string { return strings.TrimSpace(r.Fields[ColOrderNumber]) }
func (r LedgerRow) PDFLink() string     { return strings.TrimSpace(r.Fields[ColPDFLink]) }
func (r LedgerRow) Status() Status      { return Status(r.Fields[ColStatus]) }

// ExternalOrder is an order row pulled from the order management system.
type ExternalOrder struct {
	OrderID     string
	OrderNumber string
}

// UploadOutcome is the result of pushing one document to the order system.
// Skipped is set when no call was made.
type UploadOutcome struct {
	OK         bool
	Skipped    bool
	StatusCode int
	Err        error
}

func text(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intText(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func weightText(o OrderInformation) string {
	if o.Weight == nil {
		return ""
	}
	return o.Weight.String()
}
