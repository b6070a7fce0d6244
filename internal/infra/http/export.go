package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/gastro-stock/internal/domain/lots"
)

// exportStock выгружает остатки в Excel: строка на партию плюс строка на товар
// с сверкой совокупного кэша против суммы активных партий.
func (a *API) exportStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := a.catalog.List(ctx, false)
	if err != nil {
		a.writeError(w, err)
		return
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{
		"product_id",
		"product_name",
		"unit",
		"manages_lots",
		"aggregate_stock",
		"lot_id",
		"batch_number",
		"lot_stock",
		"lot_status",
		"expires_at",
		"reconciled", // aggregate == сумме активных партий
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		a.writeError(w, err)
		return
	}

	row := 2
	writeRow := func(vals []interface{}) bool {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			a.writeError(w, err)
			return false
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			a.writeError(w, err)
			return false
		}
		row++
		return true
	}

	for _, p := range products {
		if !p.ManagesLots {
			if !writeRow([]interface{}{p.ID, p.Name, string(p.Unit), false, p.Stock, "", "", "", "", "", ""}) {
				return
			}
			continue
		}

		ls, err := a.lots.ListByProduct(ctx, p.ID)
		if err != nil {
			a.writeError(w, err)
			return
		}

		var activeSum float64
		for _, l := range ls {
			if l.Status == lots.StatusActive {
				activeSum += l.CurrentStock
			}
		}
		reconciled := activeSum == p.Stock

		if !writeRow([]interface{}{p.ID, p.Name, string(p.Unit), true, p.Stock, "", "", "", "", "", reconciled}) {
			return
		}
		for _, l := range ls {
			expires := ""
			if l.ExpiresAt != nil {
				expires = l.ExpiresAt.Format("2006-01-02")
			}
			if !writeRow([]interface{}{p.ID, p.Name, string(p.Unit), true, "", l.ID, l.BatchNumber, l.CurrentStock, string(l.Status), expires, ""}) {
				return
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		a.writeError(w, err)
		return
	}

	fileName := fmt.Sprintf("stocks_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = w.Write(buf.Bytes())
}
