package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/zkmint/circuits"
	"github.com/yourorg/zkmint/pkg/prover"
	"github.com/yourorg/zkmint/pkg/slot"
	"github.com/yourorg/zkmint/pkg/stateproof"
	"github.com/yourorg/zkmint/pkg/witness"
)

// contextKey is a custom type for context keys to avoid conflicts
type contextKey string

const startTimeKey contextKey = "start"

func elapsed(cmd *cobra.Command) time.Duration {
	return time.Since(cmd.Context().Value(startTimeKey).(time.Time))
}

func rpcFromEnv(rpcURL string) (string, error) {
	if rpcURL != "" {
		return rpcURL, nil
	}
	_ = godotenv.Load()
	if rpcURL = os.Getenv("ETH_RPC_URL"); rpcURL == "" {
		return "", fmt.Errorf("--rpc flag or ETH_RPC_URL env var is required")
	}
	return rpcURL, nil
}

type requestFlags struct {
	holder, destination, token string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.holder, "holder", "", "Ethereum address whose balance is proven")
	cmd.Flags().StringVar(&f.destination, "destination", "", "Neutron address receiving the mint")
	cmd.Flags().StringVar(&f.token, "token", "", "ERC-20 contract (storage variant)")
	_ = cmd.MarkFlagRequired("holder")
	_ = cmd.MarkFlagRequired("destination")
}

func (f *requestFlags) request() witness.Request {
	req := witness.Request{Holder: common.HexToAddress(f.holder), Destination: f.destination}
	if f.token != "" {
		token := common.HexToAddress(f.token)
		req.Token = &token
	}
	return req
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func witnessCmd() *cobra.Command {
	var (
		rpcURL, network, domain, blockTag, variantS, cw20, outDir string
		balanceSlot                                                uint64
		req                                                        requestFlags
	)

	cmd := &cobra.Command{
		Use:   "witness",
		Short: "Build the witness bundle from a live RPC and run the state-proof circuit on it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := rpcFromEnv(rpcURL)
			if err != nil {
				return err
			}
			variant, err := witness.ParseVariant(variantS)
			if err != nil {
				return err
			}
			cli, err := rpc.DialContext(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer cli.Close()

			oracle := witness.NewRPCOracle(blockTag)
			oracle.Register(domain, cli)
			provider := witness.NewRPCProvider()
			provider.Register(network, cli)

			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			builder := &witness.Builder{
				Oracle:      oracle,
				Provider:    provider,
				Network:     network,
				Domain:      domain,
				Variant:     variant,
				BalanceSlot: balanceSlot,
				Logger:      logger,
			}

			// -----------------------------------------------------------------
			// Witness bundle
			// -----------------------------------------------------------------
			bundle, root, err := builder.Build(cmd.Context(), req.request())
			if err != nil {
				return err
			}
			encoded, err := bundle.Encode()
			if err != nil {
				return err
			}

			// -----------------------------------------------------------------
			// State-proof circuit
			// -----------------------------------------------------------------
			circuit, err := stateproof.New(stateproof.Config{
				Variant:       variant,
				Domain:        domain,
				TokenContract: cw20,
				BalanceSlot:   balanceSlot,
			})
			if err != nil {
				return err
			}
			msg, err := circuit.Message(encoded)
			if err != nil {
				return err
			}

			// -----------------------------------------------------------------
			// Outputs
			// -----------------------------------------------------------------
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(outDir, "witnesses.rlp"), encoded, 0o644); err != nil {
				return err
			}
			if err := writeJSON(filepath.Join(outDir, "message.json"), msg); err != nil {
				return err
			}
			fmt.Printf("block %d root %s\n", root.Number, root.Root.Hex())
			fmt.Printf("bundle: %d witnesses, %d bytes\n", len(bundle.Witnesses), len(encoded))
			fmt.Printf("done in %s\n", elapsed(cmd))
			return nil
		},
	}

	cmd.Flags().StringVar(&rpcURL, "rpc", "", "Archive RPC URL (ETH_RPC_URL)")
	cmd.Flags().StringVar(&network, "network", witness.DefaultNetwork, "Proof provider network")
	cmd.Flags().StringVar(&domain, "domain", witness.DefaultDomain, "Domain tag")
	cmd.Flags().StringVar(&blockTag, "block-tag", "latest", "Block selector: latest, safe, finalized or a 0x number")
	cmd.Flags().StringVar(&variantS, "variant", "native", "native or storage")
	cmd.Flags().Uint64Var(&balanceSlot, "slot", 0, "Balance mapping slot (storage variant)")
	cmd.Flags().StringVar(&cw20, "cw20", "", "CW20 contract that mints")
	cmd.Flags().StringVar(&outDir, "outdir", "./", "Output directory")
	_ = cmd.MarkFlagRequired("cw20")
	req.register(cmd)
	return cmd
}

func slotCmd() *cobra.Command {
	var (
		holderS string
		index   uint64
		prove   bool
	)

	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Derive the balance-mapping storage key of a holder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !common.IsHexAddress(holderS) {
				return fmt.Errorf("invalid holder address %q", holderS)
			}
			holder := common.HexToAddress(holderS)
			key := slot.Derive(holder, index)
			fmt.Println(key.Hex())
			if !prove {
				return nil
			}

			cs, err := frontend.Compile(circuits.Curve().ScalarField(), r1cs.NewBuilder, &circuits.SlotKeyCircuit{})
			if err != nil {
				return err
			}
			pk, vk, err := groth16.Setup(cs)
			if err != nil {
				return err
			}
			assignment := circuits.SlotKeyAssignment(holder, index, key)
			full, err := frontend.NewWitness(assignment, circuits.Curve().ScalarField())
			if err != nil {
				return err
			}
			proof, err := groth16.Prove(cs, pk, full)
			if err != nil {
				return err
			}
			public, err := full.Public()
			if err != nil {
				return err
			}
			if err := groth16.Verify(proof, vk, public); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Printf("slot key proven with %d constraints in %s\n", cs.GetNbConstraints(), elapsed(cmd))
			return nil
		},
	}

	cmd.Flags().StringVar(&holderS, "holder", "", "Holder address")
	cmd.Flags().Uint64Var(&index, "index", 0, "Mapping slot index")
	cmd.Flags().BoolVar(&prove, "prove", false, "Also prove the derivation in a groth16 circuit")
	_ = cmd.MarkFlagRequired("holder")
	return cmd
}

func setupCmd() *cobra.Command {
	var (
		keysDir   string
		maxChunks int
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run (or reuse) the commitment circuit groth16 setup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := circuits.LoadOrSetup(keysDir, maxChunks); err != nil {
				return err
			}
			vk, err := os.ReadFile(filepath.Join(keysDir, "commitment_vk.bin"))
			if err != nil {
				return err
			}
			sum := sha256.Sum256(vk)
			fmt.Printf("verifying key hash: %x\n", sum[:4])
			fmt.Printf("setup done in %s\n", elapsed(cmd))
			return nil
		},
	}

	cmd.Flags().StringVar(&keysDir, "keys", "keys", "Key directory")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", circuits.DefaultMaxChunks, "Capacity in 31 byte chunks")
	return cmd
}

func proveCmd() *cobra.Command {
	var (
		keysDir, inPath, outPath string
		maxChunks                int
	)

	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove a commitment to the bytes of a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := circuits.LoadOrSetup(keysDir, maxChunks)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(inPath)
			if err != nil {
				return err
			}
			proof, err := keys.Prove(data)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, proof, 0o644); err != nil {
				return err
			}
			fmt.Printf("proof done in %s\n", elapsed(cmd))
			return nil
		},
	}

	cmd.Flags().StringVar(&keysDir, "keys", "keys", "Key directory")
	cmd.Flags().StringVar(&inPath, "in", "", "Public input bytes, e.g. message.json")
	cmd.Flags().StringVar(&outPath, "out", "proof.bin", "Proof output")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", circuits.DefaultMaxChunks, "Capacity in 31 byte chunks")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func requestCmd() *cobra.Command {
	var (
		url, appID, out string
		timeout         time.Duration
		req             requestFlags
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Ask a remote proving service for a mint proof",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			client := prover.NewClient(url, timeout, logger)
			res, err := client.Prove(cmd.Context(), appID, req.request())
			if err != nil {
				return err
			}
			artifact, err := res.Decode()
			if err != nil {
				return err
			}
			if err := writeJSON(out, res); err != nil {
				return err
			}
			fmt.Printf("program inputs: %s\n", artifact.Program.Inputs)
			fmt.Printf("proof done in %s\n", elapsed(cmd))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Proving service base URL")
	cmd.Flags().StringVar(&appID, "app-id", "", "Controller id")
	cmd.Flags().StringVar(&out, "out", "artifact.json", "Response output")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "HTTP timeout")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("app-id")
	req.register(cmd)
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "prover",
		Short: "Build witnesses and commitment proofs for zk mints",
	}
	rootCmd.AddCommand(witnessCmd(), slotCmd(), setupCmd(), proveCmd(), requestCmd())

	rootCmd.SetContext(context.WithValue(context.Background(), startTimeKey, time.Now()))
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
