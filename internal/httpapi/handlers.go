package httpapi

import (
	"net/http"

	"sarisari/backend/internal/domain"
)

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	category, err := a.service.CreateCategory(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.CategoryPatch
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), tenantOf(r), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	deleted, err := a.service.DeleteCategory(r.Context(), tenantOf(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.ProductPatch
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), tenantOf(r), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeleteProduct(r.Context(), tenantOf(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleProductSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.ProductSummary(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleRestockProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	history, err := a.service.RestockProduct(r.Context(), tenantOf(r), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "restock": history})
}

func (a *API) handleRestockHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	history, err := a.service.RestockHistory(r.Context(), tenantOf(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleExportRestocks(w http.ResponseWriter, r *http.Request) {
	wb, err := a.service.ExportRestockHistory(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeWorkbook(w, wb)
}

func (a *API) handleExportProductSales(w http.ResponseWriter, r *http.Request) {
	wb, err := a.service.ExportProductSales(r.Context(), tenantOf(r), r.URL.Query().Get("range"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeWorkbook(w, wb)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	reports, err := a.service.ListTransactions(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreateSale(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	wb, err := a.service.ExportTransactions(r.Context(), tenantOf(r), r.URL.Query().Get("range"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeWorkbook(w, wb)
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.TransactionPatch
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	tx, err := a.service.UpdateTransaction(r.Context(), tenantOf(r), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleRefundEditor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	editor, err := a.service.RefundEditor(r.Context(), tenantOf(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editor)
}

func (a *API) handleTransactionRefunds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	refunds, err := a.service.ListTransactionRefunds(r.Context(), tenantOf(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refunds)
}

func (a *API) handleListRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := a.service.ListRefunds(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refunds)
}

func (a *API) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreateRefund(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	refund, err := a.service.GetRefund(r.Context(), tenantOf(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

func (a *API) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := a.service.ListPaymentMethods(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

func (a *API) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentMethodInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	method, err := a.service.CreatePaymentMethod(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, method)
}

func (a *API) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.PaymentMethodInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	method, err := a.service.UpdatePaymentMethod(r.Context(), tenantOf(r), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, method)
}

func (a *API) handleDeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeletePaymentMethod(r.Context(), tenantOf(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleListUnitMeasurements(w http.ResponseWriter, r *http.Request) {
	units, err := a.service.ListUnitMeasurements(r.Context(), tenantOf(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (a *API) handleCreateUnitMeasurement(w http.ResponseWriter, r *http.Request) {
	var req domain.UnitMeasurementInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	unit, err := a.service.CreateUnitMeasurement(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}

func (a *API) handleUpdateUnitMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.UnitMeasurementInput
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	unit, err := a.service.UpdateUnitMeasurement(r.Context(), tenantOf(r), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (a *API) handleDeleteUnitMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := a.service.DeleteUnitMeasurement(r.Context(), tenantOf(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
