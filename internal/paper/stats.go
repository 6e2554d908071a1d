package paper

import "time"

// Summarize aggregates trade records into portfolio statistics.
func Summarize(records []TradeRecord, startingEquity float64) Stats {
	var (
		st         Stats
		resolved   int
		latencySum time.Duration
		adverseSum float64
		favoredSum float64
	)
	st.TotalTrades = len(records)
	for _, r := range records {
		adverseSum += r.MaxAdversePct
		favoredSum += r.MaxFavorablePct
		switch r.Outcome {
		case OutcomeWin:
			st.Wins++
		case OutcomeLoss:
			st.Losses++
		default:
			st.Pending++
			continue
		}
		resolved++
		st.TotalPnL += r.PnL
		latencySum += r.FillLatency
	}
	if resolved > 0 {
		st.AvgPnL = st.TotalPnL / float64(resolved)
		st.AvgLatency = latencySum / time.Duration(resolved)
		st.WinRate = float64(st.Wins) / float64(resolved) * 100
	}
	if st.TotalTrades > 0 {
		st.AvgAdverse = adverseSum / float64(st.TotalTrades)
		st.AvgFavorable = favoredSum / float64(st.TotalTrades)
	}
	st.Equity = startingEquity + st.TotalPnL
	return st
}
