// Package main is a minimal connectivity probe for use in distroless
// containers. It asks the REST API for the gateway URL and exits 0 when the
// endpoint answers, 1 otherwise. Compile with CGO_ENABLED=0 for a fully
// static binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"concord/internal/models"
	"concord/internal/rest"
)

func main() {
	cfg := models.NewDefaultConfig()
	if v := os.Getenv("CONCORD_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}

	// GET /gateway needs no token.
	client := rest.New(cfg.API, "", slog.New(slog.DiscardHandler))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := client.GetGateway(ctx)
	if err != nil {
		os.Exit(1)
	}
	fmt.Println(info.URL)
}
