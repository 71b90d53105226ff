// Package eod writes the end-of-day CSV report from the order journal and
// the day's summary.
package eod

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"
)

// journalLine is the subset of a tradelog entry the report needs.
type journalLine struct {
	Time    string `json:"time"`
	Event   string `json:"event"`
	Mode    string `json:"mode"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Qty     int    `json:"qty"`
	Success bool   `json:"success"`
}

type aggRow struct {
	Symbol  string
	SellQty int
	BuyQty  int
	Orders  int
	Failed  int
}

type Summarizer struct {
	journal string
	outDir  string
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

// NewSummarizer reads journalPath and writes reports under outDir/eod.
func NewSummarizer(journalPath, outDir string) *Summarizer {
	return &Summarizer{journal: journalPath, outDir: outDir}
}

func (s *Summarizer) csvPath(date string) string {
	return filepath.Join(s.outDir, "eod", date+".csv")
}

func (s *Summarizer) SummarizeDay(ctx context.Context, sum types.DaySummary) (string, error) {
	aggs, err := s.aggregate(sum.Date)
	if err != nil {
		return "", err
	}

	outPath := s.csvPath(sum.Date)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	rows := [][]string{{"symbol", "sell_qty", "buy_qty", "net_qty", "orders", "failed"}}
	var orders, failed int
	for _, r := range aggs {
		rows = append(rows, []string{
			r.Symbol,
			strconv.Itoa(r.SellQty),
			strconv.Itoa(r.BuyQty),
			strconv.Itoa(r.BuyQty - r.SellQty),
			strconv.Itoa(r.Orders),
			strconv.Itoa(r.Failed),
		})
		orders += r.Orders
		failed += r.Failed
	}
	rows = append(rows,
		[]string{"TOTAL", "", "", "", strconv.Itoa(orders), strconv.Itoa(failed)},
		[]string{},
		[]string{"date", "pnl", "open_legs", "closed", "note"},
		[]string{sum.Date, fmt.Sprintf("%.2f", sum.PnL), strconv.Itoa(sum.LegCount), strconv.FormatBool(sum.Closed), sum.Note},
	)
	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	return outPath, nil
}

// aggregate folds the journal's order lines for date by symbol. A missing
// journal means no orders were placed.
func (s *Summarizer) aggregate(date string) ([]aggRow, error) {
	f, err := os.Open(s.journal)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bySymbol := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l journalLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			continue
		}
		if l.Event != "order" || !strings.HasPrefix(l.Time, date) {
			continue
		}
		row := bySymbol[l.Symbol]
		if row == nil {
			row = &aggRow{Symbol: l.Symbol}
			bySymbol[l.Symbol] = row
		}
		row.Orders++
		if !l.Success {
			row.Failed++
			continue
		}
		switch l.Side {
		case types.SideBuy:
			row.BuyQty += l.Qty
		case types.SideSell:
			row.SellQty += l.Qty
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]aggRow, 0, len(bySymbol))
	for _, r := range bySymbol {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
