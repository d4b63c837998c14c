package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/encrypted-name-registry/api/clients"
	"github.com/ruteri/encrypted-name-registry/cmd/flags"
	rcommon "github.com/ruteri/encrypted-name-registry/common"
	"github.com/ruteri/encrypted-name-registry/encryption"
	"github.com/ruteri/encrypted-name-registry/encryption/gateway"
	"github.com/ruteri/encrypted-name-registry/httpserver"
	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/metrics"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/ruteri/encrypted-name-registry/registration"
	"github.com/ruteri/encrypted-name-registry/registry"
	"github.com/ruteri/encrypted-name-registry/wallet"
	"github.com/urfave/cli/v2"
)

const usage = `Register domain names whose owner is stored encrypted on-chain.

The wallet is reached either over JSON-RPC (--wallet-rpc) or held locally as a
private key signing through a node (--private-key, --rpc-addr).`

func main() {
	app := &cli.App{
		Name:  "registrar",
		Usage: usage,
		Flags: flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the registration workflow over HTTP",
				Flags:  append(append([]cli.Flag{}, flags.WalletFlags...), flags.ServerFlags...),
				Action: serve,
			},
			{
				Name:      "check",
				Usage:     "Check whether a name is available",
				ArgsUsage: "<name>",
				Flags:     flags.WalletFlags,
				Action:    check,
			},
			{
				Name:      "register",
				Usage:     "Register a name to the wallet account",
				ArgsUsage: "<name>",
				Flags:     flags.WalletFlags,
				Action:    register,
			},
			{
				Name:   "status",
				Usage:  "Show session, candidate name and ledger of a running server",
				Flags:  []cli.Flag{flags.ServerAddrFlag},
				Action: status,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// environment is everything a workflow needs that has to be released on exit.
type environment struct {
	workflow *registration.Workflow
	gateway  *gateway.Client
	slot     *encryption.Slot
	closers  []func()
}

func (e *environment) Close() {
	if e.workflow != nil {
		e.workflow.Close()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func networkConfig(cCtx *cli.Context) (network.Config, error) {
	cfg := network.Sepolia()
	if addr := cCtx.String(flags.RegistryContractFlag.Name); addr != "" {
		if !common.IsHexAddress(addr) {
			return cfg, fmt.Errorf("invalid registry contract address %q", addr)
		}
		cfg.RegistryContract = common.HexToAddress(addr)
	}
	if url := cCtx.String(flags.GatewayURLFlag.Name); url != "" {
		cfg.GatewayURL = url
	}
	return cfg, cfg.Validate()
}

func proofConvention(cCtx *cli.Context) (registry.ProofConvention, error) {
	switch v := cCtx.String(flags.ProofConventionFlag.Name); v {
	case "appended":
		return registry.ProofAppended, nil
	case "omitted":
		return registry.ProofOmitted, nil
	default:
		return 0, fmt.Errorf("invalid proof convention %q", v)
	}
}

func walletProvider(cCtx *cli.Context, logger *slog.Logger, env *environment) (interfaces.WalletProvider, error) {
	ctx := cCtx.Context

	if url := cCtx.String(flags.WalletRPCFlag.Name); url != "" {
		logger.Info("Connecting to wallet RPC", "address", url)
		provider, err := wallet.DialRPCProvider(ctx, url, logger)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, provider.Close)
		return provider, nil
	}

	key := cCtx.String(flags.PrivateKeyFlag.Name)
	if key == "" {
		return nil, errors.New("one of --wallet-rpc or --private-key is required")
	}

	rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
	logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
	ethClient, err := ethclient.DialContext(ctx, rpcAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}
	env.closers = append(env.closers, ethClient.Close)

	return wallet.NewKeyedProviderFromHex(key, ethClient)
}

func setup(cCtx *cli.Context, logger *slog.Logger, recorder metrics.Recorder) (*environment, error) {
	env := &environment{}

	cfg, err := networkConfig(cCtx)
	if err != nil {
		return nil, err
	}
	convention, err := proofConvention(cCtx)
	if err != nil {
		return nil, err
	}

	provider, err := walletProvider(cCtx, logger, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.slot = encryption.NewSlot()
	env.gateway = gateway.NewClient(gateway.DefaultConfig(cfg.GatewayURL), logger)

	loadCtx, cancel := context.WithCancel(context.Background())
	env.closers = append(env.closers, cancel)
	go func() {
		if err := gateway.Load(loadCtx, env.gateway, env.slot); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Encryption gateway failed to load", "err", err)
		}
	}()

	env.workflow = registration.NewWorkflow(registration.Config{
		Network:    cfg,
		Provider:   provider,
		Factory:    registry.NewFactory(cfg.RegistryContract, convention),
		Slot:       env.slot,
		Log:        logger,
		Metrics:    recorder,
		ProbeDelay: cCtx.Duration(flags.ProbeDelayFlag.Name),
	})
	return env, nil
}

func serve(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	serverCfg := flags.ConfigureServer(cCtx, logger)

	metricsSrv, err := metrics.New(rcommon.PackageName, serverCfg.MetricsAddr)
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	env, err := setup(cCtx, logger, metricsSrv.Recorder())
	if err != nil {
		logger.Error("Failed to set up workflow", "err", err)
		return err
	}
	defer env.Close()

	server, err := httpserver.New(serverCfg, httpserver.NewHandler(env.workflow, logger), metricsSrv)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	env.workflow.Start()
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func nameArg(cCtx *cli.Context) (string, error) {
	if cCtx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one name, got %d arguments", cCtx.NArg())
	}
	return cCtx.Args().First(), nil
}

func check(cCtx *cli.Context) error {
	name, err := nameArg(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx)

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(cCtx, logger, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	if _, err := env.workflow.Connect(ctx); err != nil {
		return err
	}

	verdict := env.workflow.Prober.Probe(ctx, name)
	fmt.Printf("%s: %s\n", name, verdict)
	return nil
}

func register(cCtx *cli.Context) error {
	name, err := nameArg(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx)

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(cCtx, logger, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	session, err := env.workflow.Connect(ctx)
	if err != nil {
		return err
	}
	logger.Info("Registering", "name", name, "account", session.Account)

	record, regErr := env.workflow.Register(ctx, name)
	if record.Status != "" {
		if err := printJSON(record); err != nil {
			return err
		}
	}
	return regErr
}

func status(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	client := clients.NewRegistrarClient(cCtx.String(flags.ServerAddrFlag.Name), logger)
	ctx := cCtx.Context

	session, err := client.Session(ctx)
	if err != nil {
		return err
	}
	domain, err := client.Domain(ctx)
	if err != nil {
		return err
	}
	ledger, err := client.Ledger(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"session": session,
		"domain":  domain,
		"ledger":  ledger,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
