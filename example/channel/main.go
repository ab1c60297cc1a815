package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/AegisWatch"
)

func main() {
	cfg, err := aegiswatch.LoadConfig("../../param.json")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, lines, closeLines := aegiswatch.NewChannelSink("fanout", 64)
	defer closeLines()

	go tally(lines)

	rt, err := aegiswatch.NewRuntime(cfg, aegiswatch.WithSink(sink))
	if err != nil {
		log.Fatalf("runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// tally counts deliveries per entity, ignoring keepalives.
func tally(lines <-chan aegiswatch.Measurement) {
	counts := make(map[string]int)
	for m := range lines {
		if m.Name == "BOGUS_METRIC" {
			continue
		}
		counts[m.Source]++
		fmt.Printf("%s %s=%g (%d from this entity)\n", m.Source, m.Name, m.Value, counts[m.Source])
	}
}
