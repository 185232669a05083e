package inventory

import (
	"context"
	"log/slog"
)

// CheckLedger replays the movement log per product and reports every product
// whose available count disagrees with the replay or breaks 0 <= available <= master.
func (s *Service) CheckLedger(ctx context.Context) ([]Drift, error) {
	var drift []Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		drift, err = s.collectDrift(ctx, tx, false)
		return err
	})
	return drift, err
}

// RepairLedger rewrites drifted available counts to the replayed value clamped
// to [0, master]. When clamping was needed a manual adjustment records the
// remainder so the next replay matches.
func (s *Service) RepairLedger(ctx context.Context) ([]Drift, error) {
	var drift []Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := s.collectDrift(ctx, tx, true)
		if err != nil {
			return err
		}
		for i := range rows {
			row := &rows[i]
			target := clamp(row.Replayed, 0, row.Master)
			if target != row.Replayed {
				if _, err := s.appendMovement(ctx, tx, row.ProductID, ActionManualAdjustment, target-row.Replayed, nil, nil); err != nil {
					return err
				}
			}
			if target != row.Stored {
				if err := tx.UpdateStock(ctx, Stock{ProductID: row.ProductID, MasterCount: row.Master, AvailableCount: target}); err != nil {
					return err
				}
			}
			row.Repaired = true
		}
		drift = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drift) > 0 {
		s.changed(ctx, "ledger repaired", slog.Int("products", len(drift)))
	}
	return drift, nil
}

func (s *Service) collectDrift(ctx context.Context, tx TxRepository, lock bool) ([]Drift, error) {
	stocks, err := tx.ListStock(ctx, lock)
	if err != nil {
		return nil, err
	}
	totals, err := tx.MovementTotals(ctx)
	if err != nil {
		return nil, err
	}
	var drift []Drift
	for _, stock := range stocks {
		replayed := totals[stock.ProductID]
		broken := stock.AvailableCount < 0 || stock.AvailableCount > stock.MasterCount
		if replayed == stock.AvailableCount && !broken {
			continue
		}
		drift = append(drift, Drift{
			ProductID: stock.ProductID,
			Master:    stock.MasterCount,
			Stored:    stock.AvailableCount,
			Replayed:  replayed,
		})
	}
	return drift, nil
}
