// Command analyze_confidence buckets closed trades by entry confidence
// and reports the win rate per bucket, to sanity-check whether the
// scorer actually predicts outcomes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fractal-trader/internal/confidence"
	"fractal-trader/internal/state"
)

type bucket struct {
	minConf       int
	maxConf       int
	totalTrades   int
	winningTrades int
	totalPnL      float64
}

func (b bucket) winRate() float64 {
	if b.totalTrades == 0 {
		return 0
	}
	return float64(b.winningTrades) / float64(b.totalTrades) * 100
}

func (b bucket) avgPnL() float64 {
	if b.totalTrades == 0 {
		return 0
	}
	return b.totalPnL / float64(b.totalTrades)
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

	buckets := []bucket{
		{minConf: 0, maxConf: 49},
		{minConf: 50, maxConf: 64},
		{minConf: 65, maxConf: 79},
		{minConf: 80, maxConf: 100},
	}

	var closed int
	for _, tr := range store.History() {
		if tr.Status != state.StatusClosed || tr.PnL == nil {
			continue
		}
		closed++
		for i := range buckets {
			if tr.Confidence < buckets[i].minConf || tr.Confidence > buckets[i].maxConf {
				continue
			}
			buckets[i].totalTrades++
			buckets[i].totalPnL += *tr.PnL
			if *tr.PnL > 0 {
				buckets[i].winningTrades++
			}
			break
		}
	}

	if closed == 0 {
		fmt.Println("no closed trades to analyze")
		return
	}

	fmt.Printf("Confidence vs outcome over %d closed trades\n\n", closed)
	fmt.Printf("%-12s %-5s %7s %5s %8s %10s\n", "CONFIDENCE", "GRADE", "TRADES", "WINS", "WIN%", "AVG PNL")
	for _, b := range buckets {
		grade := confidence.Grade(b.minConf)
		fmt.Printf("%3d - %-6d %-5s %7d %5d %7.1f%% %10.2f\n",
			b.minConf, b.maxConf, grade, b.totalTrades, b.winningTrades, b.winRate(), b.avgPnL())
	}
}
