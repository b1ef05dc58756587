package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainfill/chainfill/internal/control"
	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/indexing/abis"
	"github.com/chainfill/chainfill/internal/indexing/plan"
)

var (
	fromBlock   string
	toBlock     string
	networkName string
	sourceName  string
	batchSize   uint64
	autoApprove bool
	serveStats  bool

	forAddress      string
	contractAddress string
	contractABIs    []string
	eventNames      []string
	tokenAddress    string
	fromAddress     string
	toAddress       string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill block data for a range",
}

func init() {
	backfillCmd.PersistentFlags().StringVar(&fromBlock, "from", "earliest", "start block (number or identifier)")
	backfillCmd.PersistentFlags().StringVar(&toBlock, "to", "latest", "end block, exclusive (number or identifier)")
	backfillCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "ethereum", "network to backfill")
	backfillCmd.PersistentFlags().StringVar(&sourceName, "source", "json_rpc", "data source")
	backfillCmd.PersistentFlags().Uint64Var(&batchSize, "batch-size", 0, "blocks per fetch chunk (0 = config default)")
	backfillCmd.PersistentFlags().BoolVarP(&autoApprove, "yes", "y", false, "skip the confirmation prompt")
	backfillCmd.PersistentFlags().BoolVar(&serveStats, "metrics", false, "serve /metrics and /health while running")

	blocksCmd := &cobra.Command{
		Use:   "blocks",
		Short: "Backfill block headers",
		RunE:  runBackfill(domain.DataTypeBlocks, nil),
	}

	fullBlocksCmd := &cobra.Command{
		Use:   "full-blocks",
		Short: "Backfill blocks with transactions and logs",
		RunE:  runBackfill(domain.DataTypeFullBlocks, nil),
	}

	transactionsCmd := &cobra.Command{
		Use:   "transactions",
		Short: "Backfill transactions, optionally for one address",
		RunE: runBackfill(domain.DataTypeTransactions, func(kwargs map[string]any) {
			if forAddress != "" {
				kwargs["for_address"] = forAddress
			}
		}),
	}
	transactionsCmd.Flags().StringVar(&forAddress, "for-address", "", "only transactions from or to this address")

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Backfill contract event logs",
		RunE: runBackfill(domain.DataTypeEvents, func(kwargs map[string]any) {
			kwargs["contract_address"] = contractAddress
			if len(eventNames) > 0 {
				kwargs["event_names"] = eventNames
			}
		}),
	}
	eventsCmd.Flags().StringVar(&contractAddress, "contract-address", "", "contract emitting the events (required)")
	eventsCmd.Flags().StringSliceVar(&contractABIs, "contract-abi", nil, "path to the contract ABI JSON (required)")
	eventsCmd.Flags().StringSliceVar(&eventNames, "event-name", nil, "event to fetch (repeatable, default: all in ABI)")
	_ = eventsCmd.MarkFlagRequired("contract-address")
	_ = eventsCmd.MarkFlagRequired("contract-abi")

	transfersCmd := &cobra.Command{
		Use:   "transfers",
		Short: "Backfill ERC-20 token transfers",
		RunE: runBackfill(domain.DataTypeTransfers, func(kwargs map[string]any) {
			kwargs["token_address"] = tokenAddress
			if fromAddress != "" {
				kwargs["from_address"] = fromAddress
			}
			if toAddress != "" {
				kwargs["to_address"] = toAddress
			}
		}),
	}
	transfersCmd.Flags().StringVar(&tokenAddress, "token-address", "", "token contract (required)")
	transfersCmd.Flags().StringVar(&fromAddress, "from-address", "", "only transfers sent by this address")
	transfersCmd.Flags().StringVar(&toAddress, "to-address", "", "only transfers received by this address")
	_ = transfersCmd.MarkFlagRequired("token-address")

	backfillCmd.AddCommand(blocksCmd, fullBlocksCmd, transactionsCmd, eventsCmd, transfersCmd)
	rootCmd.AddCommand(backfillCmd)
}

// runBackfill builds the shared plan-confirm-execute flow for one data type.
func runBackfill(dataType domain.BackfillDataType, collect func(kwargs map[string]any)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		network, err := domain.ParseNetwork(networkName)
		if err != nil {
			return err
		}
		source, err := domain.ParseDataSource(sourceName)
		if err != nil {
			return err
		}

		kwargs := map[string]any{}
		if batchSize > 0 {
			kwargs["batch_size"] = batchSize
		}
		if collect != nil {
			collect(kwargs)
		}

		req := plan.Request{
			DataType:  dataType,
			Network:   network,
			Source:    source,
			FromBlock: fromBlock,
			ToBlock:   toBlock,
			Kwargs:    kwargs,
		}

		if dataType == domain.DataTypeEvents {
			registry := abis.NewRegistry()
			for _, path := range contractABIs {
				name, err := registry.LoadFile(path)
				if err != nil {
					return err
				}
				req.DecodedABIs = append(req.DecodedABIs, name)
			}
			req.Decoder = registry
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		service, err := control.NewService(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer service.Close()

		p, err := service.PlanBackfill(ctx, req)
		if err != nil {
			return err
		}

		p.Describe(os.Stdout)
		if p.Empty() {
			return nil
		}
		if !autoApprove && !confirm("Execute backfill?") {
			fmt.Println("Aborted.")
			return nil
		}

		if serveStats {
			server := control.NewServer(service, cfg.Server.Port)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Stop(shutdownCtx)
			}()
		}

		start := time.Now()
		runErr := service.RunBackfill(ctx, p)
		if runErr != nil {
			slog.Error("backfill stopped early, progress saved", "error", runErr, "elapsed", time.Since(start))
			return runErr
		}

		slog.Info("backfill complete", "blocks", p.TotalBlocks(), "elapsed", time.Since(start))
		return nil
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
