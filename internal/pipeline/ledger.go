package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
	"trade-quality-lab/internal/tradestats"
)

// LedgerHeader is the column layout of a position ledger CSV.
var LedgerHeader = []string{"symbol", "timestamp", "pos_qty", "txn_value", "pos_value"}

// Ledger is a parsed position ledger.
type Ledger struct {
	Records []domain.PositionRecord

	// Exact per-symbol sums of the money columns
	TxnTotals map[string]decimal.Decimal
	LastValue map[string]decimal.Decimal
}

// Symbols returns the ledger's symbols sorted ASC.
func (l *Ledger) Symbols() []string {
	symbols := make([]string, 0, len(l.TxnTotals))
	for s := range l.TxnTotals {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// NetPL returns the exact net trading P&L of a symbol over the whole
// ledger: final position value minus the sum of transaction values.
func (l *Ledger) NetPL(symbol string) decimal.Decimal {
	return l.LastValue[symbol].Sub(l.TxnTotals[symbol])
}

// ReconcileTolerance is the largest difference Reconcile callers accept
// between the exact ledger figure and float64 trade P&L.
var ReconcileTolerance = decimal.New(1, -6)

// Reconcile returns the ledger's net P&L of symbol minus the summed cash net
// P&L of trades. Flat-to-flat trades with the open trade included cover every
// transaction, so for that table the difference is zero up to float rounding.
func (l *Ledger) Reconcile(symbol string, trades []domain.TradeStats) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range trades {
		if math.IsNaN(t.NetTradingPL) || math.IsInf(t.NetTradingPL, 0) {
			return decimal.Zero, fmt.Errorf("%w: trade %s of %s has net P&L %v",
				storage.ErrInvalidInput, t.TradeID, symbol, t.NetTradingPL)
		}
		sum = sum.Add(decimal.NewFromFloat(t.NetTradingPL))
	}
	return l.NetPL(symbol).Sub(sum), nil
}

// ReadLedger parses a ledger CSV. The header row is required. Timestamps
// are RFC3339 or Unix milliseconds. Rows of different symbols may
// interleave, but within a symbol timestamps must strictly increase:
// an equal timestamp is ErrDuplicateKey, a smaller one ErrUnorderedSeries.
func ReadLedger(r io.Reader) (*Ledger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(LedgerHeader)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty ledger", storage.ErrInvalidInput)
		}
		return nil, fmt.Errorf("read ledger header: %w", err)
	}
	for i, col := range LedgerHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return nil, fmt.Errorf("%w: ledger column %d is %q, want %q", storage.ErrInvalidInput, i+1, header[i], col)
		}
	}

	ledger := &Ledger{
		TxnTotals: make(map[string]decimal.Decimal),
		LastValue: make(map[string]decimal.Decimal),
	}
	lastTs := make(map[string]int64)

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		line, _ := cr.FieldPos(0)

		rec, txn, value, err := parseLedgerRow(row)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}

		if prev, ok := lastTs[rec.Symbol]; ok {
			if rec.TimestampMs == prev {
				return nil, fmt.Errorf("ledger line %d: %w: %s at %d", line, storage.ErrDuplicateKey, rec.Symbol, rec.TimestampMs)
			}
			if rec.TimestampMs < prev {
				return nil, fmt.Errorf("ledger line %d: %w: %s", line, tradestats.ErrUnorderedSeries, rec.Symbol)
			}
		}
		lastTs[rec.Symbol] = rec.TimestampMs

		ledger.Records = append(ledger.Records, rec)
		ledger.TxnTotals[rec.Symbol] = ledger.TxnTotals[rec.Symbol].Add(txn)
		ledger.LastValue[rec.Symbol] = value
	}

	return ledger, nil
}

func parseLedgerRow(row []string) (domain.PositionRecord, decimal.Decimal, decimal.Decimal, error) {
	var rec domain.PositionRecord

	rec.Symbol = strings.TrimSpace(row[0])
	if rec.Symbol == "" {
		return rec, decimal.Zero, decimal.Zero, fmt.Errorf("%w: empty symbol", storage.ErrInvalidInput)
	}

	ts, err := parseTimestamp(strings.TrimSpace(row[1]))
	if err != nil {
		return rec, decimal.Zero, decimal.Zero, err
	}
	rec.TimestampMs = ts

	qty, err := decimal.NewFromString(strings.TrimSpace(row[2]))
	if err != nil {
		return rec, decimal.Zero, decimal.Zero, fmt.Errorf("%w: pos_qty %q", storage.ErrInvalidInput, row[2])
	}
	txn, err := decimal.NewFromString(strings.TrimSpace(row[3]))
	if err != nil {
		return rec, decimal.Zero, decimal.Zero, fmt.Errorf("%w: txn_value %q", storage.ErrInvalidInput, row[3])
	}
	value, err := decimal.NewFromString(strings.TrimSpace(row[4]))
	if err != nil {
		return rec, decimal.Zero, decimal.Zero, fmt.Errorf("%w: pos_value %q", storage.ErrInvalidInput, row[4])
	}

	rec.PosQty = qty.InexactFloat64()
	rec.TxnValue = txn.InexactFloat64()
	rec.PosValue = value.InexactFloat64()

	return rec, txn, value, nil
}

// parseTimestamp accepts Unix milliseconds or RFC3339.
func parseTimestamp(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q", storage.ErrInvalidInput, s)
	}
	return t.UnixMilli(), nil
}

// WriteLedger writes records as a ledger CSV with Unix millisecond timestamps.
func WriteLedger(w io.Writer, records []domain.PositionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return err
	}
	for _, r := range records {
		err := cw.Write([]string{
			r.Symbol,
			strconv.FormatInt(r.TimestampMs, 10),
			strconv.FormatFloat(r.PosQty, 'f', -1, 64),
			strconv.FormatFloat(r.TxnValue, 'f', -1, 64),
			strconv.FormatFloat(r.PosValue, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportLedgerFile reads a ledger CSV and inserts its rows into store.
// The import is all-or-nothing per InsertBulk semantics.
func ImportLedgerFile(ctx context.Context, path string, store storage.PositionSeriesStore) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	ledger, err := ReadLedger(f)
	if err != nil {
		return nil, err
	}

	if err := store.InsertBulk(ctx, ledger.Records); err != nil {
		return nil, fmt.Errorf("insert ledger rows: %w", err)
	}

	return ledger, nil
}
