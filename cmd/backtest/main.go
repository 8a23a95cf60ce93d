// cmd/backtest replays recorded ticks from SQLite through the strategy
// engine and prints every signal, to tune pair settings without live data.
//
// Usage:
//
//	go run ./cmd/backtest --db data/signals.db --pairs pairs.yaml --from 2024-03-01 --speed 0
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/marketdata/replay"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"

	"github.com/urfave/cli/v3"
)

func loadPairs(path string) ([]config.PairConfig, error) {
	if path != "" {
		return config.LoadPairsFile(path)
	}
	return config.Load().LoadPairs()
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	logger.Init("backtest", logger.ParseLevel(cmd.String("log-level")))

	pairs, err := loadPairs(cmd.String("pairs"))
	if err != nil {
		return fmt.Errorf("load pairs: %w", err)
	}
	engine, err := strategy.NewEngine(pairs, strategy.Options{})
	if err != nil {
		return err
	}

	reader, err := sqlitestore.NewReader(cmd.String("db"))
	if err != nil {
		return fmt.Errorf("sqlite open failed: %w", err)
	}
	defer reader.Close()

	// Optionally mirror the replay into Redis so a running sigengine sees it.
	var mirror *redisstore.Writer
	if addr := cmd.String("redis"); addr != "" {
		mirror, err = redisstore.New(redisstore.WriterConfig{Addr: addr})
		if err != nil {
			return err
		}
		defer mirror.Close()
	}

	opts := replay.Options{
		From:  cmd.Timestamp("from"),
		Until: cmd.Timestamp("until"),
		Pairs: make(map[string]bool, len(pairs)),
		Speed: cmd.Float("speed"),
	}
	for _, p := range pairs {
		opts.Pairs[p.Name] = true
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	tickCh := make(chan model.Tick, 10000)
	var replayErr error
	go func() {
		_, replayErr = replay.New(reader).Run(ctx, opts, tickCh)
		close(tickCh)
	}()

	start := time.Now()
	processed, rejected := 0, 0
	verbose := cmd.Bool("verbose")
	for t := range tickCh {
		if mirror != nil {
			if err := mirror.PublishTick(ctx, t); err != nil {
				log.Printf("[backtest] redis publish: %v", err)
			}
		}
		out, err := engine.Evaluate(t)
		if err != nil {
			rejected++
			continue
		}
		processed++
		if verbose {
			for _, r := range engine.Indicators(t.Pair) {
				if r.Ready {
					fmt.Printf("  [%s] %s %s = %.6f\n", t.TS.Format(time.RFC3339), t.Pair, r.Name, r.Value)
				}
			}
		}
		switch {
		case out.Emitted:
			ev := out.Signal
			fmt.Printf("%s  %-12s %-4s price=%-12g fast=%-12.6f slow=%-12.6f %s\n",
				ev.TS.Format(time.RFC3339), ev.Pair, ev.Action, ev.Price, ev.Fast, ev.Slow, ev.Reason)
		case out.Suppressed != "":
			fmt.Printf("%s  %-12s %-4s suppressed: %s\n", t.TS.Format(time.RFC3339), out.Pair, out.Action, out.Suppressed)
		}
	}
	if replayErr != nil && ctx.Err() == nil {
		return fmt.Errorf("replay: %w", replayErr)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                  BACKTEST COMPLETE                   ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║  Ticks processed: %-34d ║\n", processed)
	fmt.Printf("║  Ticks rejected:  %-34d ║\n", rejected)
	fmt.Printf("║  Elapsed:         %-34s ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	for _, st := range engine.Statuses() {
		fmt.Printf("║  %-12s ticks=%-8d signals=%-5d vetoed=%-5d ║\n", st.Name, st.Ticks, st.Signals, st.Suppressed)
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay recorded ticks through the crossover strategy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the SQLite database with recorded ticks",
				Value: "data/signals.db",
			},
			&cli.StringFlag{
				Name:    "pairs",
				Aliases: []string{"p"},
				Usage:   "Pairs `FILE` (YAML); defaults to the PAIRS_FILE/PAIRS environment",
			},
			&cli.TimestampFlag{
				Name:  "from",
				Usage: "Only ticks after `YYYY-MM-DD` (or RFC3339)",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02", time.RFC3339},
				},
			},
			&cli.TimestampFlag{
				Name:  "until",
				Usage: "Only ticks up to `YYYY-MM-DD` (or RFC3339)",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02", time.RFC3339},
				},
			},
			&cli.FloatFlag{
				Name:  "speed",
				Usage: "Playback speed multiplier (0=max, 1=realtime, 100=100x)",
			},
			&cli.StringFlag{
				Name:  "redis",
				Usage: "Also publish replayed ticks to the tick streams at `ADDR`",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print every ready indicator value",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
