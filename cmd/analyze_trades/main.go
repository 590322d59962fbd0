// Command analyze_trades prints per-symbol performance from the
// persisted trading state file.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fractal-trader/internal/state"
)

type symbolStats struct {
	Symbol        string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      float64
	TotalWins     float64
	TotalLosses   float64
}

func (s symbolStats) winRate() float64 {
	closed := s.WinningTrades + s.LosingTrades
	if closed == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(closed) * 100
}

func main() {
	statePath := flag.String("state", "trading_state.json", "path to the state file")
	flag.Parse()

	_ = godotenv.Load()
	if v := os.Getenv("TRADER_STATE_PATH"); v != "" && *statePath == "trading_state.json" {
		*statePath = v
	}

	store, err := state.NewStore(*statePath, zerolog.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open state file: %v\n", err)
		os.Exit(1)
	}

	history := store.History()
	if len(history) == 0 {
		fmt.Println("no trades recorded")
		return
	}

	bySymbol := make(map[string]*symbolStats)
	for _, tr := range history {
		s, ok := bySymbol[tr.Symbol]
		if !ok {
			s = &symbolStats{Symbol: tr.Symbol}
			bySymbol[tr.Symbol] = s
		}
		s.TotalTrades++
		if tr.Status != state.StatusClosed || tr.PnL == nil {
			continue
		}
		s.TotalPnL += *tr.PnL
		if *tr.PnL > 0 {
			s.WinningTrades++
			s.TotalWins += *tr.PnL
		} else {
			s.LosingTrades++
			s.TotalLosses += -*tr.PnL
		}
	}

	stats := make([]*symbolStats, 0, len(bySymbol))
	for _, s := range bySymbol {
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].TotalPnL > stats[j].TotalPnL })

	fmt.Printf("Trade history: %d trades across %d symbols\n\n", len(history), len(stats))
	fmt.Printf("%-8s %7s %5s %6s %8s %12s %12s %12s\n",
		"SYMBOL", "TRADES", "WINS", "LOSSES", "WIN%", "TOTAL PNL", "WINS PNL", "LOSSES PNL")
	var total float64
	for _, s := range stats {
		fmt.Printf("%-8s %7d %5d %6d %7.1f%% %12.2f %12.2f %12.2f\n",
			s.Symbol, s.TotalTrades, s.WinningTrades, s.LosingTrades,
			s.winRate(), s.TotalPnL, s.TotalWins, s.TotalLosses)
		total += s.TotalPnL
	}
	fmt.Printf("\nNet realized PnL: %.2f\n", total)
}
