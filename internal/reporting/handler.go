package reporting

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/udaykiran1867/tce-project1/internal/platform/httpx"
	"github.com/udaykiran1867/tce-project1/internal/shared"
)

// Handler exposes the /logs report endpoints.
type Handler struct {
	service *Service
	pdf     PDFRenderer
	logger  *slog.Logger
}

// NewHandler constructs the report handler. pdf may be nil, which disables
// the PDF download.
func NewHandler(service *Service, pdf PDFRenderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, pdf: pdf, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/monthly", h.handleMonthlySummary)
	r.Get("/monthly/export", h.handleMonthlySummaryExport)
	r.Get("/monthly-products", h.handleProductReport)
	r.Get("/monthly-products/export", h.handleProductReportExport)
	r.Get("/recent", h.handleRecent)
	r.Get("/defective-remarks", h.handleDefectiveRemarks)
	r.Get("/pdf", h.handlePDF)
	r.Get("/download", h.handlePDF)
}

func (h *Handler) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.MonthlySummary(r.Context(), intQuery(r, "months", DefaultSummaryMonths))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}

func (h *Handler) handleMonthlySummaryExport(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.MonthlySummary(r.Context(), intQuery(r, "months", DefaultSummaryMonths))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=monthly-summary.csv")
	if err := WriteMonthlySummaryCSV(w, buckets); err != nil {
		h.logger.Error("write summary csv", slog.Any("error", err))
	}
}

func (h *Handler) handleProductReport(w http.ResponseWriter, r *http.Request) {
	period, report, ok := h.productReport(w, r)
	if !ok {
		return
	}
	h.logger.Debug("product report served", slog.String("period", period.Key()), slog.Int("rows", len(report.Rows)))
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleProductReportExport(w http.ResponseWriter, r *http.Request) {
	period, report, ok := h.productReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=product-report-%s.csv", period.Key()))
	if err := WriteProductReportCSV(w, period, report); err != nil {
		h.logger.Error("write product report csv", slog.String("period", period.Key()), slog.Any("error", err))
	}
}

func (h *Handler) productReport(w http.ResponseWriter, r *http.Request) (Period, ProductReport, bool) {
	q := r.URL.Query()
	period, err := h.service.ResolvePeriod(q.Get("month"), q.Get("year"))
	if err != nil {
		h.fail(w, r, err)
		return Period{}, ProductReport{}, false
	}
	report, err := h.service.MonthlyProductReport(r.Context(), period)
	if err != nil {
		h.fail(w, r, err)
		return Period{}, ProductReport{}, false
	}
	return period, report, true
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.RecentLogs(r.Context(), intQuery(r, "limit", DefaultRecentLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) handleDefectiveRemarks(w http.ResponseWriter, r *http.Request) {
	remarks, err := h.service.DefectiveRemarks(r.Context(), intQuery(r, "limit", DefaultRemarkLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, remarks)
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := h.service.ResolvePeriod(q.Get("month"), q.Get("year"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.service.MonthlyLogs(r.Context(), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pdf, err := RenderMonthlyLogPDF(r.Context(), h.pdf, period, logs, h.service.Now())
	if errors.Is(err, ErrPDFUnavailable) {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "pdf rendering not configured")
		return
	}
	if err != nil {
		h.logger.Error("render monthly pdf", slog.String("period", period.Key()), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "pdf rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=inventory-report-%s.pdf", period.Key()))
	_, _ = w.Write(pdf)
}

// intQuery parses a numeric query parameter, returning def when it is absent
// or not a number.
func intQuery(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, shared.ErrValidation) {
		h.logger.Error("report request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
