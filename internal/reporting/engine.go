package reporting

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/udaykiran1867/tce-project1/internal/inventory"
)

const (
	// DefaultSummaryMonths is used when the window size is missing or invalid.
	DefaultSummaryMonths = 6
	// MaxSummaryMonths caps the summary window.
	MaxSummaryMonths = 24
)

// ProductRecord is a transaction record joined with its product name.
type ProductRecord struct {
	inventory.Record
	ProductName string
}

// PriorTotal aggregates the movement log of one product and action type
// before a cut-off. Magnitude sums absolute quantities, Net the signed ones.
type PriorTotal struct {
	ProductID int64
	Action    inventory.ActionType
	Magnitude int
	Net       int
}

// TransactionEntry is a record listed inside a month bucket.
type TransactionEntry struct {
	ID          int64  `json:"id"`
	ProductName string `json:"productName"`
	StudentName string `json:"studentName"`
	USN         string `json:"usn"`
	Section     string `json:"section"`
	Type        string `json:"type"`
	Quantity    int    `json:"quantity"`
	Date        string `json:"date"`
	ReturnDate  string `json:"returnDate"`
}

// MonthBucket holds the aggregated figures of one calendar month.
type MonthBucket struct {
	Key              string             `json:"key"`
	Month            string             `json:"month"`
	Year             int                `json:"year"`
	MonthYear        string             `json:"monthYear"`
	NewlyPurchased   int                `json:"newlyPurchased"`
	DefectiveRemoved int                `json:"defectiveRemoved"`
	UtilizedItems    int                `json:"utilizedItems"`
	OpeningStock     int                `json:"openingStock"`
	ClosingStock     int                `json:"closingStock"`
	Transactions     []TransactionEntry `json:"transactions"`
}

// ProductRow is one line of the per-product monthly report.
type ProductRow struct {
	ProductID    int64  `json:"productId"`
	ProductName  string `json:"productName"`
	OpeningStock int    `json:"openingStock"`
	Additions    int    `json:"additions"`
	Scrap        int    `json:"scrap"`
	Utilized     int    `json:"utilized"`
	ClosingStock int    `json:"closingStock"`
}

// ProductReport is the per-product monthly report.
type ProductReport struct {
	Month int          `json:"month"`
	Year  int          `json:"year"`
	Rows  []ProductRow `json:"rows"`
}

// ClampMonths bounds the summary window to 1..24.
func ClampMonths(months int) int {
	if months < 1 {
		return 1
	}
	if months > MaxSummaryMonths {
		return MaxSummaryMonths
	}
	return months
}

// SummaryWindow returns the half-open interval covered by a summary of the
// given number of months ending with the month containing now.
func SummaryWindow(now time.Time, months int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	months = ClampMonths(months)
	local := now.In(loc)
	current := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return current.AddDate(0, -(months - 1), 0), current.AddDate(0, 1, 0)
}

// BuildMonthBuckets creates empty buckets, oldest first.
func BuildMonthBuckets(now time.Time, months int, loc *time.Location) []MonthBucket {
	if loc == nil {
		loc = time.UTC
	}
	start, _ := SummaryWindow(now, months, loc)
	months = ClampMonths(months)
	buckets := make([]MonthBucket, 0, months)
	for i := 0; i < months; i++ {
		m := start.AddDate(0, i, 0)
		buckets = append(buckets, MonthBucket{
			Key:          m.Format("2006-01"),
			Month:        m.Month().String(),
			Year:         m.Year(),
			MonthYear:    m.Format("Jan 2006"),
			Transactions: []TransactionEntry{},
		})
	}
	return buckets
}

// BuildMonthlySummary aggregates movements and records into month buckets and
// sweeps balances forward from an opening of zero at the earliest bucket.
func BuildMonthlySummary(now time.Time, months int, loc *time.Location, movements []inventory.Movement, records []ProductRecord) []MonthBucket {
	if loc == nil {
		loc = time.UTC
	}
	buckets := BuildMonthBuckets(now, months, loc)
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b.Key] = i
	}

	for _, mv := range movements {
		i, ok := index[mv.CreatedAt.In(loc).Format("2006-01")]
		if !ok {
			continue
		}
		switch mv.Action {
		case inventory.ActionCompanyPurchase:
			buckets[i].NewlyPurchased += abs(mv.Quantity)
		case inventory.ActionDefectiveRemoved:
			buckets[i].DefectiveRemoved += abs(mv.Quantity)
		}
	}

	sorted := append([]ProductRecord(nil), records...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ea, eb := EffectiveDate(sorted[a].Record, loc), EffectiveDate(sorted[b].Record, loc)
		if !ea.Equal(eb) {
			return ea.Before(eb)
		}
		return sorted[a].ID < sorted[b].ID
	})
	for _, rec := range sorted {
		if !utilizes(rec.Type) {
			continue
		}
		effective := EffectiveDate(rec.Record, loc)
		i, ok := index[effective.Format("2006-01")]
		if !ok {
			continue
		}
		buckets[i].UtilizedItems += rec.Quantity
		buckets[i].Transactions = append(buckets[i].Transactions, entryFor(rec, effective, loc))
	}

	opening := 0
	for i := range buckets {
		buckets[i].OpeningStock = opening
		closing := opening + buckets[i].NewlyPurchased - buckets[i].DefectiveRemoved - buckets[i].UtilizedItems
		if closing < 0 {
			closing = 0
		}
		buckets[i].ClosingStock = closing
		opening = closing
	}
	return buckets
}

// BuildProductReport computes opening, additions, scrap, utilized and closing
// stock per product for one month. Opening replays every movement before the
// period start.
func BuildProductReport(period Period, products []inventory.Product, prior []PriorTotal, movements []inventory.Movement, records []ProductRecord) ProductReport {
	loc := period.Start.Location()
	rows := make(map[int64]*ProductRow, len(products))
	ordered := make([]*ProductRow, 0, len(products))
	for _, p := range products {
		row := &ProductRow{ProductID: p.ID, ProductName: p.Name}
		rows[p.ID] = row
		ordered = append(ordered, row)
	}

	for _, t := range prior {
		row, ok := rows[t.ProductID]
		if !ok {
			continue
		}
		switch t.Action {
		case inventory.ActionCompanyPurchase, inventory.ActionStudentReturn:
			row.OpeningStock += t.Magnitude
		case inventory.ActionDefectiveRemoved, inventory.ActionStudentBorrow, inventory.ActionStudentPurchase:
			row.OpeningStock -= t.Magnitude
		case inventory.ActionManualAdjustment:
			row.OpeningStock += t.Net
		}
	}

	for _, mv := range movements {
		row, ok := rows[mv.ProductID]
		if !ok || !period.Contains(mv.CreatedAt.In(loc)) {
			continue
		}
		switch mv.Action {
		case inventory.ActionCompanyPurchase:
			row.Additions += abs(mv.Quantity)
		case inventory.ActionDefectiveRemoved:
			row.Scrap += abs(mv.Quantity)
		}
	}

	for _, rec := range records {
		row, ok := rows[rec.ProductID]
		if !ok || !utilizes(rec.Type) || !period.Contains(EffectiveDate(rec.Record, loc)) {
			continue
		}
		row.Utilized += rec.Quantity
	}

	out := make([]ProductRow, 0, len(ordered))
	for _, row := range ordered {
		if row.OpeningStock < 0 {
			row.OpeningStock = 0
		}
		row.ClosingStock = row.OpeningStock + row.Additions - row.Scrap - row.Utilized
		if row.ClosingStock < 0 {
			row.ClosingStock = 0
		}
		out = append(out, *row)
	}
	col := collate.New(language.English)
	sort.SliceStable(out, func(a, b int) bool {
		if c := col.CompareString(out[a].ProductName, out[b].ProductName); c != 0 {
			return c < 0
		}
		return out[a].ProductID < out[b].ProductID
	})
	return ProductReport{Month: int(period.Month), Year: period.Year, Rows: out}
}

// EffectiveDate is the issue date of a record, falling back to its creation
// time. Issue dates are calendar dates and are placed at midnight in loc.
func EffectiveDate(rec inventory.Record, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if rec.IssueDate != nil {
		y, m, d := rec.IssueDate.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return rec.CreatedAt.In(loc)
}

func entryFor(rec ProductRecord, effective time.Time, loc *time.Location) TransactionEntry {
	name := rec.ProductName
	if name == "" {
		name = "Unknown"
	}
	kind := "borrow"
	if rec.Type == inventory.TransactionPurchased {
		kind = "purchase"
	}
	returned := ""
	if rec.ReturnDate != nil {
		returned = rec.ReturnDate.In(loc).Format("2006-01-02")
	}
	return TransactionEntry{
		ID:          rec.ID,
		ProductName: name,
		StudentName: rec.StudentName,
		USN:         rec.USN,
		Section:     rec.Section,
		Type:        kind,
		Quantity:    rec.Quantity,
		Date:        effective.Format("2006-01-02"),
		ReturnDate:  returned,
	}
}

func utilizes(t inventory.TransactionType) bool {
	return t == inventory.TransactionBorrowed || t == inventory.TransactionPurchased
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
