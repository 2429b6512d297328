package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/bimakw/equity-ledger/internal/application/services"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/cache"
	"github.com/bimakw/equity-ledger/internal/infrastructure/database"
	"github.com/bimakw/equity-ledger/internal/infrastructure/ethereum"
)

var (
	migrateDown int
	rollback    bool

	regChainID   int64
	regName      string
	regSymbol    string
	regDecimals  int
	regBlock     int64
	regDeployer  string
	regDeployedT string

	atBlock int64
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if rollback {
			n, err := e.db.Rollback(migrateDown)
			if err != nil {
				return err
			}
			printf(cmd, "rolled back %d migration(s) on %s\n", n, e.db.Dialect())
			return nil
		}

		n, err := e.db.Migrate()
		if err != nil {
			return err
		}
		printf(cmd, "applied %d migration(s) on %s\n", n, e.db.Dialect())
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <address>",
	Short: "Register a deployed equity token contract",
	Long: `Register adds a contract to the registry. A running indexer picks it up
on its next discovery tick and backfills from the deployment block.
Name, symbol and decimals are read from chain when not given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		in := services.RegisterContractInput{
			Address:         args[0],
			ChainID:         regChainID,
			Name:            regName,
			Symbol:          regSymbol,
			DeployedAtBlock: regBlock,
			DeployedBy:      regDeployer,
		}
		if in.ChainID == 0 {
			in.ChainID = e.cfg.Ethereum.ChainID
		}
		if cmd.Flags().Changed("decimals") {
			in.Decimals = &regDecimals
		}
		if regDeployedT != "" {
			t, err := time.Parse(time.RFC3339, regDeployedT)
			if err != nil {
				return fmt.Errorf("invalid --deployed-at: %w", err)
			}
			in.DeployedAt = t.UTC()
		}

		var metadata services.MetadataSource
		needsChain := in.Name == "" || in.Symbol == "" || in.Decimals == nil || in.DeployedAt.IsZero()
		if needsChain {
			client, err := ethereum.NewClient(e.cfg.Ethereum, e.logger)
			if err != nil {
				return fmt.Errorf("metadata or deployment time missing and chain unreachable: %w", err)
			}
			defer client.Close()

			fetcher, err := ethereum.NewMetadataFetcher(client, e.logger)
			if err != nil {
				return err
			}
			metadata = fetcher

			if in.DeployedAt.IsZero() {
				ts, err := client.GetBlockTimestamp(cmd.Context(), uint64(in.DeployedAtBlock))
				if err != nil {
					return fmt.Errorf("failed to read deployment block time: %w", err)
				}
				in.DeployedAt = ts
			}
		}

		svc := services.NewContractService(database.NewContractRepo(e.db), metadata, nil, e.logger)
		contract, err := svc.Register(cmd.Context(), in)
		if err != nil {
			return err
		}

		printf(cmd, "registered %s (%s, id %d) from block %d\n",
			contract.Address, contract.Symbol, contract.ID, contract.DeployedAtBlock)
		return nil
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <address>",
	Short: "Stop indexing a contract; its ledger is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <address>",
	Short: "Resume indexing a deactivated contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

func setActive(cmd *cobra.Command, address string, active bool) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc := services.NewContractService(database.NewContractRepo(e.db), nil, nil, e.logger)
	contract, err := svc.SetActive(cmd.Context(), address, active)
	if err != nil {
		return err
	}

	printf(cmd, "%s active=%t\n", contract.Address, contract.IsActive)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status [address]",
	Short: "Print indexer status of one or every registered contract",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		contracts := database.NewContractRepo(e.db)
		svc := services.NewStatusService(contracts, database.NewCursorRepo(e.db), e.logger)

		var addresses []string
		if len(args) == 1 {
			addresses = args
		} else {
			all, err := contracts.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range all {
				addresses = append(addresses, c.Address)
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONTRACT\tSTATE\tREADY\tLAST BLOCK")
		for _, addr := range addresses {
			resp, err := svc.GetIndexerStatus(cmd.Context(), addr)
			if err != nil {
				return err
			}
			s := resp.Data
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", s.ContractAddress, s.State, s.Ready, s.LastProcessedBlock)
		}
		return w.Flush()
	},
}

var capTableCmd = &cobra.Command{
	Use:   "captable <address>",
	Short: "Print the cap table of a contract, optionally as of a block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid contract address %q", args[0])
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := services.NewCapTableService(
			database.NewContractRepo(e.db),
			database.NewBalanceRepo(e.db),
			database.NewTransferRepo(e.db),
			database.NewAllowlistRepo(e.db),
			database.NewCursorRepo(e.db),
			nil,
			e.cfg.API,
			e.logger,
		)

		var resp *services.CapTableResponse
		if cmd.Flags().Changed("block") {
			resp, err = svc.GetCapTableAtBlock(cmd.Context(), args[0], atBlock)
		} else {
			resp, err = svc.GetCurrentCapTable(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		if resp == nil {
			return fmt.Errorf("%s: %w", entities.NormalizeAddress(args[0]), entities.ErrContractNotFound)
		}

		table := resp.Data
		if table.AtBlock != nil {
			printf(cmd, "cap table of %s at block %d\n", table.ContractAddress, *table.AtBlock)
		} else {
			printf(cmd, "cap table of %s\n", table.ContractAddress)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "HOLDER\tBALANCE\tOWNERSHIP %\tALLOWLISTED\t")
		for _, row := range table.Rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t\n", row.Address, row.BalanceStr, row.OwnershipPercentage, row.IsAllowlisted)
		}
		fmt.Fprintf(w, "total\t%s\t%d holders\t\t\n", table.TotalSupply, table.HolderCount)
		return w.Flush()
	},
}

var purgeCacheCmd = &cobra.Command{
	Use:   "purge-cache <address>",
	Short: "Drop every cached cap table of a contract from Redis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		redisCache, err := cache.NewRedisCache(e.cfg.Redis, e.logger)
		if err != nil {
			return err
		}
		defer redisCache.Close()

		svc := services.NewContractService(database.NewContractRepo(e.db), nil, redisCache, e.logger)
		if err := svc.PurgeCache(cmd.Context(), args[0]); err != nil {
			return err
		}

		printf(cmd, "purged cached cap tables of %s\n", entities.NormalizeAddress(args[0]))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&rollback, "down", false, "roll back instead of applying")
	migrateCmd.Flags().IntVar(&migrateDown, "steps", 1, "migrations to roll back with --down; 0 rolls back all")

	registerCmd.Flags().Int64Var(&regChainID, "chain-id", 0, "chain id (defaults to ETH_CHAIN_ID)")
	registerCmd.Flags().StringVar(&regName, "name", "", "token name")
	registerCmd.Flags().StringVar(&regSymbol, "symbol", "", "token symbol")
	registerCmd.Flags().IntVar(&regDecimals, "decimals", 0, "token decimals")
	registerCmd.Flags().Int64Var(&regBlock, "deployed-block", 0, "block the contract was deployed in")
	registerCmd.Flags().StringVar(&regDeployer, "deployed-by", "", "deployer address")
	registerCmd.Flags().StringVar(&regDeployedT, "deployed-at", "", "deployment time, RFC3339 (read from chain when empty)")
	_ = registerCmd.MarkFlagRequired("deployed-block")

	capTableCmd.Flags().Int64Var(&atBlock, "block", 0, "reconstruct the cap table as of this block")
}

// exitCode maps well known failures to distinct exit codes for scripts
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, entities.ErrContractNotFound):
		return 3
	case errors.Is(err, services.ErrContractExists):
		return 4
	default:
		return 1
	}
}
