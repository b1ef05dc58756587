package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chainfill/chainfill/internal/control"
	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/infra/storage"
)

var (
	listDataType string
	listNetwork  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded backfilled ranges",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		filter := storage.RangeFilter{
			DataType: domain.BackfillDataType(listDataType),
			Network:  domain.Network(listNetwork),
		}
		ranges, err := service.ListRanges(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(ranges) == 0 {
			fmt.Println("No backfilled ranges recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNETWORK\tDATA TYPE\tSTART\tEND\tBLOCKS")
		for _, r := range ranges {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
				r.ID, r.Network, r.DataType, r.StartBlock, r.EndBlock, r.EndBlock-r.StartBlock)
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <range-id>",
	Short: "Delete a recorded backfilled range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer service.Close()

		if err := service.DeleteRange(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted range %s\n", args[0])
		return nil
	},
}

func openService(ctx context.Context) (*control.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return control.NewService(ctx, cfg, slog.Default())
}

func init() {
	listCmd.Flags().StringVar(&listDataType, "data-type", "", "filter by data type")
	listCmd.Flags().StringVar(&listNetwork, "network", "", "filter by network")
	backfillCmd.AddCommand(listCmd, deleteCmd)
}
