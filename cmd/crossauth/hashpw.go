package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/crossauth/password"
)

func hashPasswordCmd() *cobra.Command {
	cfg := password.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an Argon2id hash for seeding users",
		Long: `Hash a password with the Argon2id parameters used by the server.
The password is read from the first argument, or from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readPassword(cmd, args)
			if err != nil {
				return err
			}
			hasher, err := password.NewArgon2(cfg)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(plaintext)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&cfg.Memory, "memory", cfg.Memory, "Argon2 memory in KiB")
	cmd.Flags().Uint32Var(&cfg.Time, "time", cfg.Time, "Argon2 passes")
	cmd.Flags().Uint8Var(&cfg.Parallelism, "parallelism", cfg.Parallelism, "Argon2 lanes")
	return cmd
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("empty password")
	}
	return line, nil
}
