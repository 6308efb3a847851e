package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/seal"
)

const keyEnv = "EXPORT_ENCRYPTION_KEY"

// resolveKey decodes the --key flag, falling back to EXPORT_ENCRYPTION_KEY.
func resolveKey(flag string) ([]byte, error) {
	raw := strings.TrimSpace(flag)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv(keyEnv))
	}
	if raw == "" {
		return nil, fmt.Errorf("no key: pass --key or set %s", keyEnv)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("key must be hex encoded: %w", err)
	}
	if err := seal.CheckKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// guideSchema resolves guide against the schemas in dir, or the embedded
// schemas when dir is empty.
func guideSchema(guide, dir string) (*schema.Schema, error) {
	var (
		reg *schema.Registry
		err error
	)
	if dir != "" {
		reg, err = schema.LoadDir(dir)
	} else {
		reg, err = schema.Embedded()
	}
	if err != nil {
		return nil, err
	}
	sch, ok := reg.Get(strings.ToUpper(guide))
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownGuide, guide)
	}
	return sch, nil
}

func nameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <guide> <establishment-code> <YYYY-MM>",
		Short: "Print the official file names for a guide and period",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := guideSchema(args[0], "")
			if err != nil {
				return err
			}
			period, err := core.ParsePeriod(args[2])
			if err != nil {
				return err
			}

			code := core.NormalizeEstablishmentCode(args[1])
			base := core.OfficialBaseName(sch.Guide(), code, period.Year, period.Month)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "establishment: %s\n", code)
			fmt.Fprintf(out, "text:          %s\n", core.OfficialFileName(base, sch.TextExt()))
			fmt.Fprintf(out, "container:     %s\n", core.OfficialFileName(base, sch.ContainerExt()))
			fmt.Fprintf(out, "archive:       %s\n", core.OfficialFileName(base, sch.ArchiveExt()))
			return nil
		},
	}
}

// guideFromFileName returns the guide prefix of an official file name such
// as CDT-DFSSA-2403.TXT.
func guideFromFileName(name string) string {
	guide, _, _ := strings.Cut(filepath.Base(name), "-")
	return guide
}

func sealCmd() *cobra.Command {
	var keyHex, outDir, guide, schemaDir string

	cmd := &cobra.Command{
		Use:   "seal <text-file>",
		Short: "Encrypt a text artifact and pack it into its official archive",
		Long: "Seal encrypts a guide's text artifact with 3DES-CBC, stores it under the guide's " +
			"container extension inside an archive with the guide's archive extension, " +
			"and prints the SHA-256 of the archive. The guide defaults to the file name prefix.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if guide == "" {
				guide = guideFromFileName(args[0])
			}
			sch, err := guideSchema(guide, schemaDir)
			if err != nil {
				return fmt.Errorf("seal %s: %w", filepath.Base(args[0]), err)
			}

			key, err := resolveKey(keyHex)
			if err != nil {
				return err
			}

			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			container, err := seal.Seal(text, key)
			if err != nil {
				return err
			}

			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			archive, err := seal.Pack(core.OfficialFileName(base, sch.ContainerExt()), container, time.Now())
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = filepath.Dir(args[0])
			}
			dest := filepath.Join(outDir, core.OfficialFileName(base, sch.ArchiveExt()))
			if err := os.WriteFile(dest, archive, 0o644); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", seal.Digest(archive), dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "3DES key as 48 hex characters (default $"+keyEnv+")")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: next to the input)")
	cmd.Flags().StringVarP(&guide, "guide", "g", "", "Guide of the artifact (default: file name prefix)")
	cmd.Flags().StringVar(&schemaDir, "schemas", "", "Directory of guide schemas (default: embedded)")
	return cmd
}

func openCmd() *cobra.Command {
	var keyHex, outFile, charset string

	cmd := &cobra.Command{
		Use:   "open <archive.zip>",
		Short: "Unpack and decrypt a deliverable archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveKey(keyHex)
			if err != nil {
				return err
			}

			archive, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			name, container, err := seal.Unpack(archive)
			if err != nil {
				return err
			}
			plain, err := seal.Open(container, key)
			if err != nil {
				return fmt.Errorf("open %s: %w", name, err)
			}

			if outFile != "" {
				return os.WriteFile(outFile, plain, 0o644)
			}
			text, err := seal.Decode(plain, charset)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "3DES key as 48 hex characters (default $"+keyEnv+")")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the raw text here instead of printing it")
	cmd.Flags().StringVar(&charset, "charset", "windows-1252", "Encoding of the text artifact")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <archive.zip>",
		Short: "Show the entry, sizes and digest of a deliverable archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			name, container, err := seal.Unpack(archive)
			if err != nil {
				if errors.Is(err, seal.ErrArchive) {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "archive:   %s (%d bytes)\n", filepath.Base(args[0]), len(archive))
			fmt.Fprintf(out, "sha256:    %s\n", seal.Digest(archive))
			fmt.Fprintf(out, "entry:     %s (%d bytes)\n", name, len(container))
			fmt.Fprintf(out, "aligned:   %v\n", len(container)%8 == 0 && len(container) > 0)
			return nil
		},
	}
}
