package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/threepl_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryTransactionInput struct {
	ProductId              int                      `json:"product_id"`
	Type                   InventoryTransactionType `json:"type"`
	Quantity               LedgerQuantity           `json:"quantity"`
	WarehouseId            int                      `json:"warehouse_id"`
	DestinationWarehouseId int                      `json:"destination_warehouse_id"`
	Reference              string                   `json:"reference"`
	Notes                  string                   `json:"notes"`
	PostedAt               *time.Time               `json:"posted_at"`
	// Actor is supplied by the caller's identity context, never by the request body.
	Actor string `json:"-"`
}

// InventoryPosting is the outcome of one applied ledger call.
type InventoryPosting struct {
	Record       InventoryRecord        `json:"record"`
	Balances     []InventoryBalance     `json:"balances"`
	Transactions []InventoryTransaction `json:"transactions"`
}

type inventoryPostedEvent struct {
	ProductId    int                      `json:"product_id"`
	Sku          string                   `json:"sku"`
	Type         InventoryTransactionType `json:"type"`
	Reference    string                   `json:"reference"`
	OnHandUnits  int64                    `json:"on_hand_units"`
	Transactions []int                    `json:"transaction_ids"`
}

func (input *InventoryTransactionInput) validate() error {
	ve := &ValidationError{}
	if input.ProductId <= 0 {
		ve.Add("product_id", "is required")
	}
	if !input.Type.IsValid() {
		ve.Add("type", "must be one of receipt, shipment, adjustment, transfer")
	}
	if strings.TrimSpace(input.Actor) == "" {
		ve.Add("actor", "is required")
	}
	if input.Quantity.IsNegative() {
		ve.Add("quantity", "must not be negative")
	} else if input.Quantity.IsZero() && input.Type != InventoryTransactionAdjustment {
		ve.Add("quantity", "must be greater than zero")
	}
	if input.Type == InventoryTransactionTransfer {
		if input.DestinationWarehouseId <= 0 {
			ve.Add("destination_warehouse_id", "is required for a transfer")
		}
	} else if input.DestinationWarehouseId != 0 {
		ve.Add("destination_warehouse_id", "only applies to transfers")
	}
	if len(input.Reference) > 100 {
		ve.Add("reference", "must be at most 100 characters")
	}
	return ve.OrNil()
}

// ApplyInventoryTransaction posts one receipt, shipment, adjustment or transfer. The product's
// inventory record is locked for the whole call, so postings for one product are serialized.
// A rejected posting changes nothing and writes no transaction row.
func ApplyInventoryTransaction(db *gorm.DB, input InventoryTransactionInput) (*InventoryPosting, error) {
	input.Reference = strings.TrimSpace(input.Reference)
	if err := input.validate(); err != nil {
		return nil, err
	}

	var posting *InventoryPosting
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		posting, err = applyInventoryTransactionTx(tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posting, nil
}

func applyInventoryTransactionTx(tx *gorm.DB, input InventoryTransactionInput) (*InventoryPosting, error) {
	product, err := utils.FetchModel[Product](tx, input.ProductId)
	if err != nil {
		return nil, err
	}
	units, ok := product.ToUnits(input.Quantity)
	if !ok {
		return nil, NewValidationError("quantity", "is too large for %s", product.Sku)
	}

	// lock order: inventory record, balances by warehouse id, then a capped warehouse row
	record, err := lockInventoryRecord(tx, product.ID)
	if err != nil {
		return nil, err
	}

	source, err := resolvePostingWarehouse(tx, input.WarehouseId, "warehouse_id")
	if err != nil {
		return nil, err
	}
	var destination *Warehouse
	if input.Type == InventoryTransactionTransfer {
		destination, err = resolvePostingWarehouse(tx, input.DestinationWarehouseId, "destination_warehouse_id")
		if err != nil {
			return nil, err
		}
		if destination.ID == source.ID {
			return nil, NewValidationError("destination_warehouse_id", "must differ from the source warehouse")
		}
	}

	postedAt := time.Now().UTC()
	if input.PostedAt != nil {
		postedAt = input.PostedAt.UTC()
	}
	correlationId := ""
	if tx.Statement.Context != nil {
		correlationId, _ = utils.GetCorrelationIdFromContext(tx.Statement.Context)
	}
	newTxn := func(wh *Warehouse, delta int64, after int64, leg TransferLeg) InventoryTransaction {
		return InventoryTransaction{
			ProductId:       product.ID,
			WarehouseId:     wh.ID,
			TransactionType: input.Type,
			TransferLeg:     leg,
			Units:           input.Quantity.Units,
			Cases:           input.Quantity.Cases,
			Pallets:         input.Quantity.Pallets,
			QuantityUnits:   delta,
			BalanceAfter:    after,
			Reference:       input.Reference,
			Actor:           input.Actor,
			Notes:           input.Notes,
			CorrelationId:   correlationId,
			PostedAt:        postedAt,
		}
	}

	var (
		balances []*InventoryBalance
		txns     []InventoryTransaction
		netDelta int64
	)

	switch input.Type {
	case InventoryTransactionReceipt:
		bal, err := lockInventoryBalance(tx, product.ID, source.ID)
		if err != nil {
			return nil, err
		}
		if _, ok := addUnits(record.OnHandUnits, units); !ok {
			return nil, NewValidationError("quantity", "would push on-hand for %s past the largest storable count", product.Sku)
		}
		after := bal.OnHandUnits + units
		if err := checkWarehouseCapacity(tx, source, product, after); err != nil {
			return nil, err
		}
		bal.OnHandUnits = after
		balances = append(balances, bal)
		txns = append(txns, newTxn(source, units, after, ""))
		netDelta = units
		record.LastReceivedAt = &postedAt

	case InventoryTransactionShipment:
		bal, err := lockInventoryBalance(tx, product.ID, source.ID)
		if err != nil {
			return nil, err
		}
		after := bal.OnHandUnits - units
		if after < 0 || record.OnHandUnits-units < 0 {
			return nil, fmt.Errorf("%w: %s has %d units at %s, shipment needs %d",
				ErrInsufficientInventory, product.Sku, bal.OnHandUnits, source.Code, units)
		}
		bal.OnHandUnits = after
		balances = append(balances, bal)
		txns = append(txns, newTxn(source, -units, after, ""))
		netDelta = -units
		record.LastShippedAt = &postedAt

	case InventoryTransactionAdjustment:
		bal, err := lockInventoryBalance(tx, product.ID, source.ID)
		if err != nil {
			return nil, err
		}
		if _, ok := addUnits(record.OnHandUnits-bal.OnHandUnits, units); !ok {
			return nil, NewValidationError("quantity", "would push on-hand for %s past the largest storable count", product.Sku)
		}
		delta := units - bal.OnHandUnits
		bal.OnHandUnits = units
		balances = append(balances, bal)
		txns = append(txns, newTxn(source, delta, units, ""))
		netDelta = delta

	case InventoryTransactionTransfer:
		if input.Reference == "" {
			input.Reference = "TRF-" + uuid.NewString()
		}
		first, second := source, destination
		if second.ID < first.ID {
			first, second = second, first
		}
		firstBal, err := lockInventoryBalance(tx, product.ID, first.ID)
		if err != nil {
			return nil, err
		}
		secondBal, err := lockInventoryBalance(tx, product.ID, second.ID)
		if err != nil {
			return nil, err
		}
		srcBal, dstBal := firstBal, secondBal
		if first.ID != source.ID {
			srcBal, dstBal = secondBal, firstBal
		}

		srcAfter := srcBal.OnHandUnits - units
		if srcAfter < 0 {
			return nil, fmt.Errorf("%w: %s has %d units at %s, transfer needs %d",
				ErrInsufficientInventory, product.Sku, srcBal.OnHandUnits, source.Code, units)
		}
		dstAfter := dstBal.OnHandUnits + units
		if err := checkWarehouseCapacity(tx, destination, product, dstAfter); err != nil {
			return nil, err
		}
		srcBal.OnHandUnits = srcAfter
		dstBal.OnHandUnits = dstAfter
		balances = append(balances, srcBal, dstBal)
		txns = append(txns,
			newTxn(source, -units, srcAfter, TransferLegOut),
			newTxn(destination, units, dstAfter, TransferLegIn),
		)
	}

	for _, bal := range balances {
		if err := tx.Model(bal).Update("on_hand_units", bal.OnHandUnits).Error; err != nil {
			return nil, err
		}
	}

	record.OnHandUnits += netDelta
	record.OnHandCases, record.OnHandPallets = product.FullCasesAndPallets(record.OnHandUnits)
	if err := tx.Model(record).Select("on_hand_units", "on_hand_cases", "on_hand_pallets", "last_received_at", "last_shipped_at").
		Updates(record).Error; err != nil {
		return nil, err
	}

	if err := tx.Create(&txns).Error; err != nil {
		return nil, err
	}

	event := inventoryPostedEvent{
		ProductId:   product.ID,
		Sku:         product.Sku,
		Type:        input.Type,
		Reference:   input.Reference,
		OnHandUnits: record.OnHandUnits,
	}
	for _, t := range txns {
		event.Transactions = append(event.Transactions, t.ID)
	}
	if err := PublishEvent(tx, EventInventoryTransactionPosted, OutboxReferenceProduct, product.ID, event); err != nil {
		return nil, err
	}

	posting := &InventoryPosting{Record: *record, Transactions: txns}
	for _, bal := range balances {
		posting.Balances = append(posting.Balances, *bal)
	}
	return posting, nil
}

// resolvePostingWarehouse loads id, or the default warehouse when id is 0, and requires it to be active.
func resolvePostingWarehouse(tx *gorm.DB, id int, field string) (*Warehouse, error) {
	var (
		wh  *Warehouse
		err error
	)
	if id == 0 {
		wh, err = GetWarehouseByCode(tx, DefaultWarehouseCode)
	} else {
		wh, err = utils.FetchModel[Warehouse](tx, id)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, NewValidationError(field, "warehouse %d not found", id)
		}
		return nil, err
	}
	if !wh.Active() {
		return nil, NewValidationError(field, "warehouse %s is inactive", wh.Code)
	}
	return wh, nil
}

type palletOccupancyRow struct {
	ProductId      int
	OnHandUnits    int64
	UnitsPerCase   int
	CasesPerPallet int
}

// checkWarehouseCapacity fails when storing newUnits of product at wh would need more pallet
// positions than the warehouse has. The warehouse row is locked so concurrent receipts into the
// same capped location are serialized.
func checkWarehouseCapacity(tx *gorm.DB, wh *Warehouse, product *Product, newUnits int64) error {
	if wh.PalletCapacity == nil {
		return nil
	}
	var locked Warehouse
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, wh.ID).Error; err != nil {
		return err
	}

	var rows []palletOccupancyRow
	err := tx.Table("inventory_balances").
		Select("inventory_balances.product_id, inventory_balances.on_hand_units, products.units_per_case, products.cases_per_pallet").
		Joins("JOIN products ON products.id = inventory_balances.product_id").
		Where("inventory_balances.warehouse_id = ? AND inventory_balances.product_id <> ? AND inventory_balances.on_hand_units > 0", wh.ID, product.ID).
		Scan(&rows).Error
	if err != nil {
		return err
	}

	var occupied int64
	for _, r := range rows {
		p := Product{UnitsPerCase: r.UnitsPerCase, CasesPerPallet: r.CasesPerPallet}
		occupied += p.PalletPositions(r.OnHandUnits)
	}
	occupied += product.PalletPositions(newUnits)
	if occupied > *locked.PalletCapacity {
		return fmt.Errorf("%w: %s needs %d pallet positions, capacity is %d",
			ErrLocationCapacityExceeded, wh.Code, occupied, *locked.PalletCapacity)
	}
	return nil
}
