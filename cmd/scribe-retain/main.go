// Command scribe-retain drives the retention workflow from the command line:
// staleness scans, flagging stale rows into purge requests, and the review
// step that approves or rejects them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/carverlabs/scribe/internal/config"
	"github.com/carverlabs/scribe/internal/connections"
	"github.com/carverlabs/scribe/internal/retention"
	"github.com/carverlabs/scribe/pkg/types"
)

var (
	flagTables = flag.String("flag", "", "Comma-separated tables to flag for purge, or 'all' (writes purge requests)")
	listCmd    = flag.Bool("list", false, "List purge requests and exit")
	statusStr  = flag.String("status", "", "Filter -list by status: pending, approved, rejected")
	limit      = flag.Int("limit", 50, "Maximum requests shown by -list")
	approveID  = flag.String("approve", "", "Approve a pending purge request by id (deletes the captured rows)")
	rejectID   = flag.String("reject", "", "Reject a pending purge request by id")
	note       = flag.String("note", "", "Review note recorded by -reject")
	operator   = flag.String("operator", "", "Identity recorded on flag and review actions (default: $SCRIBE_OPERATOR, then $USER)")
)

func main() {
	flag.Parse()

	// Load .env file (optional - won't error if missing)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	policy, err := config.LoadRetentionPolicy(cfg.Retention.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to load retention policy: %v", err)
	}

	store := connections.MustOpen(cfg.DatabaseConfig())
	defer store.Close()

	manager, err := retention.NewManager(store, policy)
	if err != nil {
		log.Fatalf("Failed to create retention manager: %v", err)
	}

	ctx := context.Background()

	// Handle command modes; a staleness scan is the default
	switch {
	case *flagTables != "":
		handleFlag(ctx, manager, policy, *flagTables)
	case *listCmd:
		handleList(ctx, manager, *statusStr, *limit)
	case *approveID != "":
		handleApprove(ctx, manager, *approveID)
	case *rejectID != "":
		handleReject(ctx, manager, *rejectID, *note)
	default:
		handleScan(ctx, manager)
	}
}

// operatorName resolves the identity recorded on flag and review actions.
func operatorName() string {
	if *operator != "" {
		return *operator
	}
	if v := os.Getenv("SCRIBE_OPERATOR"); v != "" {
		return v
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "operator"
}

func handleScan(ctx context.Context, manager *retention.Manager) {
	report, err := manager.Scan(ctx)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	fmt.Printf("Retention scan at %s\n\n", report.ScannedAt.Format(time.RFC3339))
	for _, stat := range report.Tables {
		fmt.Printf("%-20s window %3dd  total %6d  stale %6d\n",
			stat.Table, stat.WindowDays, stat.Total, stat.Stale)
	}
	fmt.Printf("\nTotal rows: %d, stale: %d\n", report.TotalRows, report.StaleRows)

	if report.StaleRows > 0 {
		fmt.Println("Run with -flag <tables> to propose a purge")
	}
}

func handleFlag(ctx context.Context, manager *retention.Manager, policy retention.Policy, spec string) {
	var tables []string
	if spec == "all" {
		tables = policy.Tables()
	} else {
		for _, t := range strings.Split(spec, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}
	}
	if len(tables) == 0 {
		log.Fatal("No tables to flag")
	}

	requests, err := manager.Flag(ctx, tables, operatorName())
	if err != nil {
		log.Fatalf("Flag failed: %v", err)
	}

	if len(requests) == 0 {
		fmt.Println("Nothing stale to flag")
		return
	}

	fmt.Printf("Flagged %d purge request(s):\n\n", len(requests))
	for _, req := range requests {
		fmt.Printf("%s  %s  %d row(s), cutoff %s\n",
			req.ID, req.TableName, req.Count(), req.Cutoff.Format("2006-01-02"))
	}
	fmt.Println("\nReview with -approve <id> or -reject <id>")
}

func handleList(ctx context.Context, manager *retention.Manager, status string, limit int) {
	purgeStatus := types.PurgeStatus(status)
	if status != "" && !types.IsValidPurgeStatus(purgeStatus) {
		log.Fatalf("Invalid status %q (want pending, approved, or rejected)", status)
	}

	requests, err := manager.Requests(ctx, purgeStatus, limit)
	if err != nil {
		log.Fatalf("Failed to list purge requests: %v", err)
	}

	if len(requests) == 0 {
		fmt.Println("No purge requests found")
		return
	}

	fmt.Printf("Found %d purge request(s):\n\n", len(requests))
	for i, req := range requests {
		fmt.Printf("%d. %s [%s]\n", i+1, req.ID, req.Status)
		fmt.Printf("   Table: %s, %d row(s) captured, cutoff %s\n",
			req.TableName, req.Count(), req.Cutoff.Format("2006-01-02"))
		fmt.Printf("   Flagged by %s at %s\n", req.FlaggedBy, req.CreatedAt.Format(time.RFC3339))
		if req.ReviewedBy != "" {
			fmt.Printf("   Reviewed by %s at %s", req.ReviewedBy, req.ReviewedAt.Format(time.RFC3339))
			if req.Executed {
				fmt.Printf(", deleted %d", req.DeletedCount)
			}
			if req.ReviewNote != "" {
				fmt.Printf(" (%s)", req.ReviewNote)
			}
			fmt.Println()
		}
		fmt.Println()
	}
}

func handleApprove(ctx context.Context, manager *retention.Manager, id string) {
	req, err := manager.Approve(ctx, id, operatorName())
	if err != nil {
		log.Fatalf("Approve failed: %v", err)
	}

	fmt.Printf("Purge request %s approved\n", req.ID)
	fmt.Printf("Deleted %d of %d captured %s row(s)\n", req.DeletedCount, req.Count(), req.TableName)
}

func handleReject(ctx context.Context, manager *retention.Manager, id, note string) {
	req, err := manager.Reject(ctx, id, operatorName(), note)
	if err != nil {
		log.Fatalf("Reject failed: %v", err)
	}

	fmt.Printf("Purge request %s rejected, nothing deleted\n", req.ID)
}
