package reports

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const invoiceSheet = "Invoice"

const XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportInvoiceXlsx renders a stored invoice with its lines. It reads only.
func ExportInvoiceXlsx(ctx context.Context, db *gorm.DB, invoiceId int) (*bytes.Buffer, string, error) {
	invoice, err := models.GetInvoice(ctx, db, invoiceId)
	if err != nil {
		return nil, "", err
	}
	customer, err := models.GetCustomer(ctx, db, invoice.CustomerId)
	if err != nil {
		return nil, "", err
	}
	ids := make([]int, 0, len(invoice.Lines))
	for _, l := range invoice.Lines {
		ids = append(ids, l.ServiceTypeId)
	}
	serviceTypes, err := models.GetServiceTypes(ctx, db, ids)
	if err != nil {
		return nil, "", err
	}

	f, err := buildInvoiceWorkbook(invoice, customer, serviceTypes)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf, invoice.InvoiceNumber + ".xlsx", nil
}

func buildInvoiceWorkbook(invoice *models.Invoice, customer *models.Customer, serviceTypes map[int]*models.ServiceType) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, err
	}

	header := [][]interface{}{
		{"Invoice", invoice.InvoiceNumber},
		{"Customer", fmt.Sprintf("%s (%s)", customer.Name, customer.Code)},
		{"Period", invoice.PeriodStart.Format("2006-01-02") + " to " + invoice.PeriodEnd.Format("2006-01-02")},
		{"Issue date", invoice.IssueDate.Format("2006-01-02")},
		{"Due date", invoice.DueDate.Format("2006-01-02")},
		{"Status", string(invoice.Status)},
	}
	for i, row := range header {
		if err := f.SetSheetRow(invoiceSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, err
		}
	}

	start := len(header) + 2
	columns := []interface{}{"Line", "Code", "Description", "Unit", "Quantity", "Rate", "Amount"}
	if err := f.SetSheetRow(invoiceSheet, fmt.Sprintf("A%d", start), &columns); err != nil {
		return nil, err
	}

	for i, line := range invoice.Lines {
		code, unit := "", ""
		if st, ok := serviceTypes[line.ServiceTypeId]; ok {
			code, unit = st.Code, string(st.BillingUnit)
		}
		qty, _ := line.Quantity.Float64()
		rate, _ := line.UnitRate.Float64()
		amount, _ := line.Amount.Float64()
		row := []interface{}{line.LineNo, code, line.Description, unit, qty, rate, amount}
		if err := f.SetSheetRow(invoiceSheet, fmt.Sprintf("A%d", start+i+1), &row); err != nil {
			return nil, err
		}
	}

	totalRow := start + len(invoice.Lines) + 1
	f.SetCellValue(invoiceSheet, fmt.Sprintf("F%d", totalRow), "Total")
	total, _ := invoice.TotalAmount.Float64()
	f.SetCellValue(invoiceSheet, fmt.Sprintf("G%d", totalRow), total)

	style, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(invoiceSheet, fmt.Sprintf("F%d", start+1), fmt.Sprintf("G%d", totalRow), style); err != nil {
		return nil, err
	}
	f.SetColWidth(invoiceSheet, "C", "C", 40)
	return f, nil
}
