package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Address is a ship-from or ship-to block on a Bill of Lading.
type Address struct {
	CompanyName   *string `json:"company_name"`
	ContactPerson *string `json:"contact_person"`
	ContactNumber *string `json:"contact_number"`
	Address       *string `json:"address"`
}

// CarrierInfo identifies the carrier moving the shipment.
type CarrierInfo struct {
	CarrierName *string `json:"carrier_name"`
	SCAC        *string `json:"scac"`
	ProNumber   *string `json:"pro_number"`
}

// OrderInformation holds the customer order identifiers and freight counts.
type OrderInformation struct {
	OrderNumber string           `json:"order_number" validate:"max=128"`
	ShipmentID  string           `json:"shipment_id" validate:"max=128"`
	Pallets     *int             `json:"pallets" validate:"omitempty,gte=0"`
	Cartons     *int             `json:"cartons" validate:"omitempty,gte=0"`
	Weight      *decimal.Decimal `json:"weight"`
}

// Shipment is the structured record extracted from one BOL page.
type Shipment struct {
	ShipFrom                 Address          `json:"ship_from"`
	ShipTo                   Address          `json:"ship_to"`
	CarrierInfo              CarrierInfo      `json:"carrier_info"`
	CustomerOrderInformation OrderInformation `json:"customer_order_information"`
}

// OrderNumber is the ledger business key.
func (s Shipment) OrderNumber() string {
	return s.CustomerOrderInformation.OrderNumber
}

// FileName derives the artifact name for the shipment's page.
// An empty order or shipment number is kept as an empty placeholder.
func (s Shipment) FileName() string {
	return fmt.Sprintf("Order %s - Shipment %s", s.CustomerOrderInformation.OrderNumber, s.CustomerOrderInformation.ShipmentID)
}

// PDFName is the blob and ledger name of the shipment's page PDF.
func (s Shipment) PDFName() string {
	return s.FileName() + ".pdf"
}

var phoneReplacer = strings.NewReplacer("+", "", "-", "", "*", "", "_", "")

// CleanPhone strips formatting punctuation from a phone number. Digits and spaces are kept.
func CleanPhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	cleaned := phoneReplacer.Replace(*phone)
	return &cleaned
}

// WithCleanPhones returns a copy of the shipment with both contact numbers normalized.
func (s Shipment) WithCleanPhones() Shipment {
	s.ShipFrom.ContactNumber = CleanPhone(s.ShipFrom.ContactNumber)
	s.ShipTo.ContactNumber = CleanPhone(s.ShipTo.ContactNumber)
	return s
}
