package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourorg/zkmint/circuits"
	"github.com/yourorg/zkmint/pkg/authz"
	"github.com/yourorg/zkmint/pkg/localprover"
	"github.com/yourorg/zkmint/pkg/prover"
	"github.com/yourorg/zkmint/pkg/witness"
)

func main() {
	var (
		proofPath, inputsPath, artifactPath, vkPath, rpcURL string
		maxChunks                                           int
	)

	cmd := &cobra.Command{
		Use:   "verifier",
		Short: "Verify commitment proofs of a zk mint artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			vk, err := circuits.ReadVerifyingKey(vkPath)
			if err != nil {
				return err
			}
			v := &circuits.Verifier{VK: vk, MaxChunks: maxChunks}

			// a single proof over raw input bytes
			if artifactPath == "" {
				if proofPath == "" || inputsPath == "" {
					return fmt.Errorf("--artifact or both --proof and --inputs are required")
				}
				proof, err := os.ReadFile(proofPath)
				if err != nil {
					return err
				}
				inputs, err := os.ReadFile(inputsPath)
				if err != nil {
					return err
				}
				if err := v.Verify(inputs, proof); err != nil {
					return fmt.Errorf("verification failed: %w", err)
				}
				fmt.Println("proof verified")
				return nil
			}

			raw, err := os.ReadFile(artifactPath)
			if err != nil {
				return err
			}
			var res prover.Response
			if err := json.Unmarshal(raw, &res); err != nil {
				return fmt.Errorf("parse %s: %w", artifactPath, err)
			}
			artifact, err := res.Decode()
			if err != nil {
				return err
			}
			if err := v.Verify(artifact.Program.Inputs, artifact.Program.Proof); err != nil {
				return fmt.Errorf("program proof: verification failed: %w", err)
			}
			if err := v.Verify(artifact.Domain.Inputs, artifact.Domain.Proof); err != nil {
				return fmt.Errorf("domain proof: verification failed: %w", err)
			}

			msg, err := authz.DecodeZkMessage(artifact.Program.Inputs)
			if err != nil {
				return err
			}
			mints, err := msg.Mints()
			if err != nil {
				return err
			}
			for _, m := range mints {
				fmt.Printf("mint %s of %s to %s\n", m.Amount, m.Contract, m.Recipient)
			}
			dm, err := localprover.DecodeDomainMessage(artifact.Domain.Inputs)
			if err != nil {
				return err
			}
			fmt.Printf("domain %s block %d root %s\n", dm.Domain, dm.Number, dm.Root.Hex())

			if rpcURL == "" {
				_ = godotenv.Load()
				rpcURL = os.Getenv("ETH_RPC_URL")
			}
			if rpcURL != "" {
				cli, err := rpc.DialContext(cmd.Context(), rpcURL)
				if err != nil {
					return err
				}
				defer cli.Close()
				_, root, err := witness.FetchHeader(cmd.Context(), cli, hexutil.EncodeUint64(dm.Number))
				if err != nil {
					return err
				}
				if root != dm.Root {
					return fmt.Errorf("state root %s of block %d does not match the proven root %s", root.Hex(), dm.Number, dm.Root.Hex())
				}
				fmt.Println("state root matches the chain")
			}
			fmt.Println("artifact verified")
			return nil
		},
	}

	cmd.Flags().StringVar(&vkPath, "vk", "", "commitment_vk.bin")
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "proving service response (JSON)")
	cmd.Flags().StringVar(&proofPath, "proof", "", "serialized groth16 proof")
	cmd.Flags().StringVar(&inputsPath, "inputs", "", "public input bytes the proof commits to")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", circuits.DefaultMaxChunks, "commitment circuit capacity in 31 byte chunks")
	cmd.Flags().StringVar(&rpcURL, "rpc", "", "Optional RPC for the state root check (ETH_RPC_URL)")
	_ = cmd.MarkFlagRequired("vk")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
