// Package dataset persists the parsed currency index and historical series as CSV.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"CryptoHist/internal/model"
	"CryptoHist/internal/numeric"
	"CryptoHist/internal/pagecache"
)

// IndexFile is the name of the index CSV under the cache root.
const IndexFile = "coinmarketcap_index.csv"

// DateFormat is the layout of the series date column.
const DateFormat = "2006-01-02"

var (
	IndexColumns  = []string{"Name", "Circulating Supply", "Market Cap", "Price", "Symbol", "Volume (24h)", "URL"}
	SeriesColumns = []string{"Date", "Close", "High", "Low", "Market Cap", "Open", "Volume"}
)

// SaveIndex writes entries to path atomically.
func SaveIndex(path string, entries []model.CurrencyEntry) error {
	return writeCSV(path, IndexColumns, indexRows(entries))
}

// EncodeIndex writes entries to w in the index CSV layout.
func EncodeIndex(w io.Writer, entries []model.CurrencyEntry) error {
	return encodeCSV(w, IndexColumns, indexRows(entries))
}

func indexRows(entries []model.CurrencyEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Name,
			numeric.Format(e.CirculatingSupply),
			numeric.Format(e.MarketCap),
			numeric.Format(e.Price),
			e.Symbol,
			numeric.Format(e.Volume24h),
			e.DetailURL,
		})
	}
	return rows
}

// LoadIndex reads an index CSV. found is false when the file does not exist.
func LoadIndex(path string) (entries []model.CurrencyEntry, found bool, err error) {
	rows, found, err := readCSV(path)
	if err != nil || !found {
		return nil, found, err
	}
	entries = make([]model.CurrencyEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, model.CurrencyEntry{
			Name:              r["Name"],
			CirculatingSupply: numeric.ToNumber(r["Circulating Supply"]),
			MarketCap:         numeric.ToNumber(r["Market Cap"]),
			Price:             numeric.ToNumber(r["Price"]),
			Symbol:            r["Symbol"],
			Volume24h:         numeric.ToNumber(r["Volume (24h)"]),
			DetailURL:         r["URL"],
		})
	}
	return entries, true, nil
}

// SaveSeries writes records to path atomically.
func SaveSeries(path string, records []model.HistoricalRecord) error {
	return writeCSV(path, SeriesColumns, seriesRows(records))
}

// EncodeSeries writes records to w in the series CSV layout.
func EncodeSeries(w io.Writer, records []model.HistoricalRecord) error {
	return encodeCSV(w, SeriesColumns, seriesRows(records))
}

func seriesRows(records []model.HistoricalRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Date.Format(DateFormat),
			numeric.Format(r.Close),
			numeric.Format(r.High),
			numeric.Format(r.Low),
			numeric.Format(r.MarketCap),
			numeric.Format(r.Open),
			numeric.Format(r.Volume),
		})
	}
	return rows
}

// LoadSeries reads a series CSV and returns its records sorted by date with
// duplicates collapsed. found is false when the file does not exist.
func LoadSeries(path string) (records []model.HistoricalRecord, found bool, err error) {
	rows, found, err := readCSV(path)
	if err != nil || !found {
		return nil, found, err
	}
	records = make([]model.HistoricalRecord, 0, len(rows))
	for i, r := range rows {
		date, err := time.Parse(DateFormat, r["Date"])
		if err != nil {
			return nil, true, &pagecache.CacheIOError{Op: "read", Path: path, Err: fmt.Errorf("row %d: %w", i+1, err)}
		}
		records = append(records, model.HistoricalRecord{
			Date:      date,
			Open:      numeric.ToNumber(r["Open"]),
			High:      numeric.ToNumber(r["High"]),
			Low:       numeric.ToNumber(r["Low"]),
			Close:     numeric.ToNumber(r["Close"]),
			MarketCap: numeric.ToNumber(r["Market Cap"]),
			Volume:    numeric.ToNumber(r["Volume"]),
		})
	}
	return model.NormalizeRecords(records), true, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	if err := encodeCSV(&buf, header, rows); err != nil {
		return &pagecache.CacheIOError{Op: "write", Path: path, Err: err}
	}
	if err := pagecache.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return &pagecache.CacheIOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func encodeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	return cw.WriteAll(rows)
}

// readCSV returns the rows of path keyed by header name.
func readCSV(path string) ([]map[string]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &pagecache.CacheIOError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, true, nil
		}
		return nil, true, &pagecache.CacheIOError{Op: "read", Path: path, Err: err}
	}
	r.FieldsPerRecord = len(header)

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, true, &pagecache.CacheIOError{Op: "read", Path: path, Err: err}
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}
