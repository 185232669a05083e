package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/udaykiran1867/tce-project1/internal/platform/httpx"
	"github.com/udaykiran1867/tce-project1/internal/shared"
)

// RepairEnqueuer schedules a background drift check.
type RepairEnqueuer interface {
	EnqueueDriftCheck(ctx context.Context, repair bool) (string, error)
}

// Handler wires HTTP endpoints for products, transactions and ledger checks.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	jobs     RepairEnqueuer
}

// NewHandler constructs inventory handler. jobs may be nil, in which case
// asynchronous repairs are rejected.
func NewHandler(logger *slog.Logger, service *Service, jobs RepairEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator(), jobs: jobs}
}

// MountProductRoutes registers /products routes.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Get("/", h.handleListProducts)
	r.Post("/", h.handleAddProduct)
	r.Put("/{id}", h.handleUpdateDetails)
	r.Put("/{id}/master", h.handleReceivePurchase)
	r.Put("/{id}/defective", h.handleMarkDefective)
	r.Delete("/{id}", h.handleDeleteProduct)
}

// MountTransactionRoutes registers /transactions routes.
func (h *Handler) MountTransactionRoutes(r chi.Router) {
	r.Get("/", h.handleListTransactions)
	r.Post("/", h.handleCreateTransaction)
	r.Put("/{id}", h.handleUpdateTransaction)
	r.Put("/{id}/return", h.handleReturnTransaction)
	r.Delete("/{id}", h.handleDeleteTransaction)
}

// MountLedgerRoutes registers /ledger routes.
func (h *Handler) MountLedgerRoutes(r chi.Router) {
	r.Get("/drift", h.handleDrift)
	r.Post("/repair", h.handleRepair)
}

type productResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        *float64  `json:"price,omitempty"`
	ImageURL     *string   `json:"imageUrl,omitempty"`
	MasterCount  int       `json:"masterCount"`
	Availability int       `json:"availability"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toProductResponse(ps ProductStock) productResponse {
	return productResponse{
		ID:           ps.ID,
		Name:         ps.Name,
		Description:  ps.Description,
		Price:        ps.Price,
		ImageURL:     ps.ImageURL,
		MasterCount:  ps.MasterCount,
		Availability: ps.AvailableCount,
		CreatedAt:    ps.CreatedAt,
	}
}

type recordResponse struct {
	ID              int64      `json:"id"`
	ProductID       int64      `json:"product_id"`
	StudentName     string     `json:"student_name"`
	USN             string     `json:"usn"`
	PhoneNumber     string     `json:"phone_number"`
	Section         string     `json:"section"`
	TransactionType string     `json:"transaction_type"`
	Quantity        int        `json:"quantity"`
	IssueDate       *string    `json:"issue_date"`
	ReturnDate      *time.Time `json:"return_date"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toRecordResponse(rec Record) recordResponse {
	out := recordResponse{
		ID:              rec.ID,
		ProductID:       rec.ProductID,
		StudentName:     rec.StudentName,
		USN:             rec.USN,
		PhoneNumber:     rec.PhoneNumber,
		Section:         rec.Section,
		TransactionType: string(rec.Type),
		Quantity:        rec.Quantity,
		ReturnDate:      rec.ReturnDate,
		CreatedAt:       rec.CreatedAt,
	}
	if rec.IssueDate != nil {
		d := rec.IssueDate.Format("2006-01-02")
		out.IssueDate = &d
	}
	return out
}

type ledgerResponse struct {
	Message       string `json:"message"`
	MasterCount   int    `json:"masterCount"`
	Availability  int    `json:"availability"`
	RemarksStored bool   `json:"remarksStored"`
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, ps := range products {
		out = append(out, toProductResponse(ps))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type addProductRequest struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Description  string   `json:"description" validate:"max=2000"`
	MasterCount  optInt   `json:"masterCount"`
	Availability optInt   `json:"availability"`
	Price        *float64 `json:"price" validate:"omitempty,gte=0"`
	ImageURL     *string  `json:"imageUrl" validate:"omitempty,url"`
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ps, err := h.service.AddProduct(r.Context(), AddProductInput{
		Name:         req.Name,
		Description:  req.Description,
		MasterCount:  req.MasterCount.Value,
		Availability: req.Availability.Ptr(),
		Price:        req.Price,
		ImageURL:     req.ImageURL,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(ps))
}

type updateDetailsRequest struct {
	Price        *float64 `json:"price" validate:"omitempty,gte=0"`
	ImageURL     *string  `json:"imageUrl" validate:"omitempty,url"`
	MasterCount  optInt   `json:"masterCount"`
	Availability optInt   `json:"availability"`
}

func (h *Handler) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateDetailsRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ps, err := h.service.UpdateDetails(r.Context(), id, DetailsInput{
		Price:        req.Price,
		ImageURL:     req.ImageURL,
		MasterCount:  req.MasterCount.Ptr(),
		Availability: req.Availability.Ptr(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(ps))
}

type receivePurchaseRequest struct {
	MasterCount optInt `json:"masterCount"`
}

func (h *Handler) handleReceivePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req receivePurchaseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.ReceivePurchase(r.Context(), id, req.MasterCount.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse{
		Message:       "Updated",
		MasterCount:   res.MasterCount,
		Availability:  res.AvailableCount,
		RemarksStored: res.RemarksStored,
	})
}

type markDefectiveRequest struct {
	Quantity     optInt `json:"quantity"`
	Remark       string `json:"remark" validate:"max=1000"`
	DefectReason string `json:"defectReason" validate:"max=1000"`
}

func (h *Handler) handleMarkDefective(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req markDefectiveRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	remark := req.Remark
	if strings.TrimSpace(remark) == "" {
		remark = req.DefectReason
	}
	res, err := h.service.MarkDefective(r.Context(), id, req.Quantity.Value, remark)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse{
		Message:       "Defective items removed",
		MasterCount:   res.MasterCount,
		Availability:  res.AvailableCount,
		RemarksStored: res.RemarksStored,
	})
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Product deleted successfully", "id": id})
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListTransactions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createTransactionRequest struct {
	ProductID       optInt `json:"productId"`
	StudentName     string `json:"student_name" validate:"required,max=200"`
	TransactionType string `json:"transaction_type" validate:"required"`
	USN             string `json:"usn" validate:"max=50"`
	Section         string `json:"section" validate:"max=50"`
	PhoneNumber     string `json:"phone_number" validate:"max=30"`
	Quantity        optInt `json:"quantity"`
	IssueDate       string `json:"issue_date"`
	ReturnDate      string `json:"return_date"`
}

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	txType, err := ParseTransactionType(req.TransactionType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	issue, err := ParseDate("issue_date", req.IssueDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	returned, err := ParseDate("return_date", req.ReturnDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.CreateTransaction(r.Context(), CreateRecordInput{
		ProductID:      int64(req.ProductID.Value),
		StudentName:    req.StudentName,
		USN:            req.USN,
		PhoneNumber:    req.PhoneNumber,
		Section:        req.Section,
		Type:           txType,
		Quantity:       req.Quantity.Value,
		IssueDate:      issue,
		ReturnDate:     returned,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Transaction saved", "transactionId": rec.ID})
}

type updateTransactionRequest struct {
	StudentName     *string   `json:"student_name" validate:"omitempty,max=200"`
	USN             *string   `json:"usn" validate:"omitempty,max=50"`
	Section         *string   `json:"section" validate:"omitempty,max=50"`
	PhoneNumber     *string   `json:"phone_number" validate:"omitempty,max=30"`
	TransactionType *string   `json:"transaction_type"`
	Quantity        optInt    `json:"quantity"`
	IssueDate       optString `json:"issue_date"`
	ReturnDate      optString `json:"return_date"`
}

func (req updateTransactionRequest) patch() (RecordPatch, error) {
	patch := RecordPatch{
		StudentName: req.StudentName,
		USN:         req.USN,
		PhoneNumber: req.PhoneNumber,
		Section:     req.Section,
	}
	if req.TransactionType != nil {
		t, err := ParseTransactionType(*req.TransactionType)
		if err != nil {
			return RecordPatch{}, err
		}
		patch.Type = &t
	}
	if req.Quantity.Set {
		if req.Quantity.Null {
			return RecordPatch{}, shared.Invalid("quantity", "must be a positive number")
		}
		q := req.Quantity.Value
		patch.Quantity = &q
	}
	if req.IssueDate.Set && !req.IssueDate.Null {
		d, err := ParseDate("issue_date", req.IssueDate.Value)
		if err != nil {
			return RecordPatch{}, err
		}
		patch.IssueDate = d
	}
	if req.ReturnDate.Set {
		if req.ReturnDate.Null {
			patch.ClearReturn = true
		} else {
			d, err := ParseDate("return_date", req.ReturnDate.Value)
			if err != nil {
				return RecordPatch{}, err
			}
			patch.ReturnDate = d
		}
	}
	return patch, nil
}

func (h *Handler) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateTransactionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.service.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Transaction updated", "transaction": toRecordResponse(rec)})
}

func (h *Handler) handleReturnTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.ReturnTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body := map[string]any{"message": "Returned successfully", "credited": res.Credited}
	if !res.ReturnDate.IsZero() {
		body["returnDate"] = res.ReturnDate
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted"})
}

func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	drift, err := h.service.CheckLedger(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if drift == nil {
		drift = []Drift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clean": len(drift) == 0, "drift": drift})
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
		if h.jobs == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "job queue not configured")
			return
		}
		taskID, err := h.jobs.EnqueueDriftCheck(r.Context(), true)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
		return
	}
	repaired, err := h.service.RepairLedger(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if repaired == nil {
		repaired = []Drift{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"repaired": repaired})
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	return httpx.ValidateStruct(h.validate, dst)
}

// fail logs dependency errors in full and hands the client a mapped problem.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
