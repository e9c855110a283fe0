//go:build ignore

// Run: go run ./build-tools/eventgen.go -url nats://localhost:4222 -subject locker.events -rps 200 -duration 60s -dup 0.05

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lockstats/internal/domain"

	"github.com/nats-io/nats.go"
)

func main() {
	var (
		url      = flag.String("url", nats.DefaultURL, "NATS server url")
		subject  = flag.String("subject", "locker.events", "ingest subject")
		rps      = flag.Int("rps", 200, "events per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		users    = flag.Int("users", 50, "distinct user addresses")
		rewards  = flag.String("reward-tokens", "0xd533a949740bb3306d119cc777fa900ba034cd52,0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", "comma-separated reward token addresses")
		dupRatio = flag.Float64("dup", 0.05, "share of events re-sent as duplicates")
	)
	flag.Parse()

	rewardTokens := splitTrim(*rewards)
	if len(rewardTokens) == 0 || *users <= 0 {
		fmt.Println("need at least one reward token and one user")
		os.Exit(1)
	}

	nc, err := nats.Connect(*url)
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		fmt.Printf("jetstream init error: %v\n", err)
		os.Exit(1)
	}

	gen := &generator{
		rewards: rewardTokens,
		users:   make([]string, *users),
	}
	for i := range gen.users {
		gen.users[i] = "0x" + randHex(40)
	}

	fmt.Printf("eventgen → url=%s subject=%s rps=%d duration=%s\n", *url, *subject, *rps, duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0

	var sent, dups int
	var last []byte

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				payload := last
				if payload == nil || mrand.Float64() >= *dupRatio {
					payload, _ = json.Marshal(gen.next(now.UTC()))
				} else {
					dups++
				}

				if _, err = js.PublishAsync(*subject, payload); err != nil {
					fmt.Printf("publish error: %v\n", err)
					continue
				}
				last = payload
				sent++
			}
		}
	}

	fmt.Println("flushing…")
	select {
	case <-js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		fmt.Println("timed out waiting for acks")
	}
	fmt.Printf("done, sent=%d duplicates=%d\n", sent, dups)
}

type generator struct {
	rewards []string
	users   []string
	block   uint64
}

func (g *generator) next(now time.Time) *domain.Event {
	g.block++

	ev := &domain.Event{
		TxHash:         "0x" + randHex(64),
		LogIndex:       uint32(mrand.Intn(20)),
		BlockNumber:    20_000_000 + g.block,
		BlockTimestamp: now.Unix(),
		User:           g.users[mrand.Intn(len(g.users))],
		Amount:         randAmount(18),
	}

	switch n := mrand.Intn(10); {
	case n < 4:
		ev.Type = domain.EventStaked
		ev.BoostedAmount = ev.Amount
	case n < 6:
		ev.Type = domain.EventWithdrawn
	case n < 7:
		ev.Type = domain.EventKickReward
	default:
		ev.Type = domain.EventRewardPaid
		ev.RewardToken = g.rewards[mrand.Intn(len(g.rewards))]
	}

	return ev
}

// randAmount returns 1..1000 whole tokens in base units
func randAmount(decimals int64) string {
	whole := big.NewInt(1 + mrand.Int63n(1000))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return whole.Mul(whole, unit).String()
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
