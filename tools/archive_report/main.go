// archive_report prints fetch outcome counts from the ClickHouse archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/joho/godotenv"

	"github.com/devpulse/stats-api/internal/worker"
)

func main() {
	since := flag.Duration("since", 24*time.Hour, "look back this far")
	user := flag.Int64("user", 0, "only this user id")
	flag.Parse()

	_ = godotenv.Load()
	chURL := os.Getenv("CLICKHOUSE_URL")
	if chURL == "" {
		chURL = "clickhouse://localhost:9000/default"
	}

	opts, err := clickhouse.ParseDSN(chURL)
	if err != nil {
		log.Fatalf("Failed to parse DSN: %v", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open connection: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	counts, err := worker.SummarizeArchive(ctx, conn, worker.ArchiveFilter{
		Since:  time.Now().Add(-*since),
		UserID: *user,
	})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tSTATUS\tFETCHES\tUSERS\tLAST FETCH")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", c.PeriodKind, c.Status, c.Fetches, c.Users, c.LastFetch.Format(time.RFC3339))
	}
	tw.Flush()
}
