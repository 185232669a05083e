package reporting

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	_, err := s.buf.WriteString("# " + line + "\r\n")
	return err
}

func (s *csvStreamer) writeRow(row ...string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteProductReportCSV streams the per-product report as CSV.
func WriteProductReportCSV(w io.Writer, period Period, report ProductReport) error {
	s := newCSVStreamer(w)
	if err := s.writeComment(fmt.Sprintf("Monthly product report %s", period.Label())); err != nil {
		return err
	}
	if err := s.writeRow("product_id", "product_name", "opening_stock", "additions", "scrap", "utilized", "closing_stock"); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := s.writeRow(
			strconv.FormatInt(row.ProductID, 10),
			row.ProductName,
			strconv.Itoa(row.OpeningStock),
			strconv.Itoa(row.Additions),
			strconv.Itoa(row.Scrap),
			strconv.Itoa(row.Utilized),
			strconv.Itoa(row.ClosingStock),
		); err != nil {
			return err
		}
	}
	return s.Flush()
}

// WriteMonthlySummaryCSV streams month buckets as CSV, one line per month.
func WriteMonthlySummaryCSV(w io.Writer, buckets []MonthBucket) error {
	s := newCSVStreamer(w)
	if err := s.writeRow("month", "opening_stock", "newly_purchased", "defective_removed", "utilized_items", "closing_stock", "transactions"); err != nil {
		return err
	}
	for _, b := range buckets {
		if err := s.writeRow(
			b.Key,
			strconv.Itoa(b.OpeningStock),
			strconv.Itoa(b.NewlyPurchased),
			strconv.Itoa(b.DefectiveRemoved),
			strconv.Itoa(b.UtilizedItems),
			strconv.Itoa(b.ClosingStock),
			strconv.Itoa(len(b.Transactions)),
		); err != nil {
			return err
		}
	}
	return s.Flush()
}
