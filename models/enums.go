package models

import "fmt"

type BillingCycle string

const (
	BillingCycleWeekly    BillingCycle = "weekly"
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
)

func (c BillingCycle) IsValid() bool {
	switch c {
	case BillingCycleWeekly, BillingCycleMonthly, BillingCycleQuarterly:
		return true
	}
	return false
}

type BillingUnit string

const (
	BillingUnitPerUnit     BillingUnit = "per_unit"
	BillingUnitPerCase     BillingUnit = "per_case"
	BillingUnitPerPallet   BillingUnit = "per_pallet"
	BillingUnitPerHour     BillingUnit = "per_hour"
	BillingUnitPerShipment BillingUnit = "per_shipment"
	BillingUnitPerTruck    BillingUnit = "per_truck"
	BillingUnitPerProject  BillingUnit = "per_project"
)

func (u BillingUnit) IsValid() bool {
	switch u {
	case BillingUnitPerUnit, BillingUnitPerCase, BillingUnitPerPallet, BillingUnitPerHour,
		BillingUnitPerShipment, BillingUnitPerTruck, BillingUnitPerProject:
		return true
	}
	return false
}

type ServiceCategory string

const (
	ServiceCategoryInbound     ServiceCategory = "inbound"
	ServiceCategoryStorage     ServiceCategory = "storage"
	ServiceCategoryFulfillment ServiceCategory = "fulfillment"
	ServiceCategoryLabor       ServiceCategory = "labor"
	ServiceCategoryValueAdded  ServiceCategory = "value_added"
	ServiceCategoryProject     ServiceCategory = "project"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// forward-only order; cancelled sits outside it
var invoiceStatusRank = map[InvoiceStatus]int{
	InvoiceStatusDraft:   0,
	InvoiceStatusSent:    1,
	InvoiceStatusOverdue: 2,
	InvoiceStatusPaid:    3,
}

func (s InvoiceStatus) IsValid() bool {
	if s == InvoiceStatusCancelled {
		return true
	}
	_, ok := invoiceStatusRank[s]
	return ok
}

// CanTransitionTo allows forward moves through draft -> sent -> overdue -> paid
// and cancellation of anything not yet paid.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s == InvoiceStatusCancelled || s == InvoiceStatusPaid {
		return false
	}
	if next == InvoiceStatusCancelled {
		return true
	}
	from, ok := invoiceStatusRank[s]
	if !ok {
		return false
	}
	to, ok := invoiceStatusRank[next]
	if !ok {
		return false
	}
	if next == InvoiceStatusOverdue && s == InvoiceStatusDraft {
		// an unsent invoice cannot be overdue
		return false
	}
	return to > from
}

type InventoryTransactionType string

const (
	InventoryTransactionReceipt    InventoryTransactionType = "receipt"
	InventoryTransactionShipment   InventoryTransactionType = "shipment"
	InventoryTransactionAdjustment InventoryTransactionType = "adjustment"
	InventoryTransactionTransfer   InventoryTransactionType = "transfer"
)

func (t InventoryTransactionType) IsValid() bool {
	switch t {
	case InventoryTransactionReceipt, InventoryTransactionShipment, InventoryTransactionAdjustment, InventoryTransactionTransfer:
		return true
	}
	return false
}

type TransferLeg string

const (
	TransferLegOut TransferLeg = "out"
	TransferLegIn  TransferLeg = "in"
)

type PalletPatternPolicy string

const (
	PalletPatternWarn   PalletPatternPolicy = "warn"
	PalletPatternReject PalletPatternPolicy = "reject"
	PalletPatternIgnore PalletPatternPolicy = "ignore"
)

func ParsePalletPatternPolicy(s string) (PalletPatternPolicy, error) {
	switch p := PalletPatternPolicy(s); p {
	case PalletPatternWarn, PalletPatternReject, PalletPatternIgnore:
		return p, nil
	}
	return "", fmt.Errorf("unknown pallet pattern policy %q", s)
}

type RateSource string

const (
	RateSourceCustomer RateSource = "customer"
	RateSourceBase     RateSource = "base"
)
