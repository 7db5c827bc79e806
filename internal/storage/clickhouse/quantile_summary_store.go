package clickhouse

import (
	"context"
	"fmt"

	"trade-quality-lab/internal/domain"
	"trade-quality-lab/internal/storage"
)

// Row kinds of the quantile_summaries table.
const (
	entryKindQuantile = "quantile"
	entryKindMaxCum   = "maxcum"
	entryKindEmpty    = "empty"
)

// QuantileSummaryStore implements storage.QuantileSummaryStore using ClickHouse.
// A summary is stored as one row per value, versioned by computed_at.
type QuantileSummaryStore struct {
	conn *Conn
}

// NewQuantileSummaryStore creates a new QuantileSummaryStore.
func NewQuantileSummaryStore(conn *Conn) *QuantileSummaryStore {
	return &QuantileSummaryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.QuantileSummaryStore = (*QuantileSummaryStore)(nil)

// Upsert writes the summary rows. Reads only see rows of the newest
// computed_at, so a later summary replaces an earlier one.
func (s *QuantileSummaryStore) Upsert(ctx context.Context, summary *domain.QuantileSummary) error {
	if summary == nil || summary.Symbol == "" || !summary.Definition.Valid() {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO quantile_summaries (
			symbol, definition, scale, entry_kind, sign, metric, level, value,
			ordinal, trade_count, winners, losers, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	def := summary.Definition.String()
	ordinal := uint32(0)
	appendRow := func(scale domain.Scale, kind, sign, metric string, level, value float64) error {
		err := batch.Append(
			summary.Symbol, def, scale.String(), kind, sign, metric, level, value,
			ordinal, uint32(summary.TradeCount), uint32(summary.Winners), uint32(summary.Losers), summary.ComputedAt,
		)
		ordinal++
		return err
	}

	for _, q := range summary.Quantiles {
		if err := appendRow(q.Key.Scale, entryKindQuantile, q.Key.Sign.String(), q.Key.Metric.String(), q.Key.Level, q.Value); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	for _, m := range summary.MaxCum {
		if err := appendRow(m.Scale, entryKindMaxCum, "", domain.MetricMAE.String(), 0, m.Value); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	for _, p := range summary.EmptyPartitions {
		if err := appendRow(p.Scale, entryKindEmpty, p.Sign.String(), "", 0, 0); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySymbol retrieves the newest summary. Returns ErrNotFound if not exists.
func (s *QuantileSummaryStore) GetBySymbol(ctx context.Context, symbol string, def domain.TradeDefinition) (*domain.QuantileSummary, error) {
	var (
		count      uint64
		computedAt int64
	)
	err := s.conn.QueryRow(ctx, `
		SELECT count(), max(computed_at)
		FROM quantile_summaries
		WHERE symbol = ? AND definition = ?
	`, symbol, def.String()).Scan(&count, &computedAt)
	if err != nil {
		return nil, fmt.Errorf("query latest summary version: %w", err)
	}
	if count == 0 {
		return nil, storage.ErrNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT scale, entry_kind, sign, metric, level, value, trade_count, winners, losers
		FROM quantile_summaries FINAL
		WHERE symbol = ? AND definition = ? AND computed_at = ?
		ORDER BY ordinal ASC
	`, symbol, def.String(), computedAt)
	if err != nil {
		return nil, fmt.Errorf("query summary rows: %w", err)
	}
	defer rows.Close()

	summary, err := scanQuantileSummary(rows)
	if err != nil {
		return nil, err
	}
	summary.Symbol = symbol
	summary.Definition = def
	summary.ComputedAt = computedAt

	return summary, nil
}

// scanQuantileSummary rebuilds a summary from its rows in ordinal order.
// Scales are recovered in order of first appearance, probs from the
// positive P&L quantiles of the first scale.
func scanQuantileSummary(rows chRows) (*domain.QuantileSummary, error) {
	summary := &domain.QuantileSummary{}
	seenScale := make(map[domain.Scale]bool)

	for rows.Next() {
		var (
			scaleName, kind, signName, metricName string
			level, value                          float64
			tradeCount, winners, losers           uint32
		)
		if err := rows.Scan(&scaleName, &kind, &signName, &metricName, &level, &value, &tradeCount, &winners, &losers); err != nil {
			return nil, fmt.Errorf("scan quantile summary row: %w", err)
		}

		summary.TradeCount = int(tradeCount)
		summary.Winners = int(winners)
		summary.Losers = int(losers)

		scale, ok := domain.ScaleFromString(scaleName)
		if !ok {
			return nil, fmt.Errorf("unknown scale %q in quantile summary", scaleName)
		}
		if !seenScale[scale] {
			seenScale[scale] = true
			summary.Scales = append(summary.Scales, scale)
		}

		switch kind {
		case entryKindQuantile:
			sign, okSign := domain.SignFromString(signName)
			metric, okMetric := domain.MetricFromString(metricName)
			if !okSign || !okMetric {
				return nil, fmt.Errorf("unknown quantile key %s/%s in quantile summary", signName, metricName)
			}
			key := domain.QuantileKey{Sign: sign, Metric: metric, Scale: scale, Level: level}
			summary.Quantiles = append(summary.Quantiles, domain.QuantileEntry{Key: key, Value: value})
			if scale == summary.Scales[0] && sign == domain.SignPos && metric == domain.MetricPL {
				summary.Probs = append(summary.Probs, level)
			}
		case entryKindMaxCum:
			summary.MaxCum = append(summary.MaxCum, domain.MaxCumEntry{Scale: scale, Value: value})
		case entryKindEmpty:
			sign, okSign := domain.SignFromString(signName)
			if !okSign {
				return nil, fmt.Errorf("unknown sign %q in quantile summary", signName)
			}
			summary.EmptyPartitions = append(summary.EmptyPartitions, domain.PartitionKey{Scale: scale, Sign: sign})
		default:
			return nil, fmt.Errorf("unknown entry kind %q in quantile summary", kind)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quantile summary rows: %w", err)
	}

	return summary, nil
}
