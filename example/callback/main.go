package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisWatch"
)

func main() {
	cfg, err := aegiswatch.LoadConfig("../../param.json")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(m aegiswatch.Measurement) error {
		fmt.Printf("%s %s source=%s value=%g\n",
			m.Timestamp.Format(time.RFC3339),
			m.Name,
			m.Source,
			m.Value,
		)
		return nil
	}

	rt, err := aegiswatch.NewRuntime(cfg, aegiswatch.WithSink(aegiswatch.NewCallbackSink("stdout", callback)))
	if err != nil {
		log.Fatalf("runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
