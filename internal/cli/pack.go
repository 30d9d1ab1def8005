package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorum-project/quorum/internal/compression"
	"github.com/quorum-project/quorum/internal/integrity"
	"github.com/quorum-project/quorum/internal/pack"
	"github.com/quorum-project/quorum/pkg/color"
	"github.com/quorum-project/quorum/pkg/model"
	"github.com/quorum-project/quorum/pkg/template"
)

// inspectMaxPayloadBytes bounds one stored blob during inspection. Wider
// than the appliance intake limit: inspection is diagnostic, not intake.
const inspectMaxPayloadBytes = 1 << 30

var (
	packVersion    string
	packKeyPath    string
	packOut        string
	packPayloads   []string
	packCreatedAt  string
	packNoCompress bool
	inspectKeyPath string
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Author and inspect update packages",
	Long: `Author and inspect update packages.

Packages are built on a connected authoring station that holds the signing
key, then carried to air-gapped appliances on removable media. Appliances
never build packages; they only verify and install them.`,
}

var packBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and sign an update package",
	Long: `Build and sign an update package from payload documents.

Each --payload names a store kind and its source document, YAML or JSON:

  --payload <kind>=<path>[@<store-version>]

The store version defaults to the package version. Sources are normalized
to canonical JSON before packing, so semantically equal YAML and JSON
inputs produce identical payloads. The output path expands {version} and
{date} placeholders.

Examples:
  quorum pack build --version 2026.08.1 --key signing.pem \
    --payload indicators=ioc.yaml --payload rules=rules.yaml@r-7 \
    --out quorum-{version}.qup`,
	Run: func(cmd *cobra.Command, args []string) {
		if packVersion == "" || packKeyPath == "" || packOut == "" || len(packPayloads) == 0 {
			fmtErr("--version, --key, --out and at least one --payload are required")
			os.Exit(1)
		}

		key, err := integrity.LoadPrivateKey(packKeyPath)
		if err != nil {
			fmtErr("load signing key: %v", err)
			os.Exit(1)
		}

		b := pack.NewBuilder(packVersion)
		if packNoCompress {
			b.SetCompressor(compression.NewCompressor(compression.LevelNone))
		}
		if packCreatedAt != "" {
			ts, err := time.Parse(time.RFC3339, packCreatedAt)
			if err != nil {
				fmtErr("parse --created-at: %v", err)
				os.Exit(1)
			}
			b.SetCreatedAt(ts)
		}

		kinds, err := addPayloadFlags(b, packPayloads, packVersion)
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		out := template.Expand(packOut, map[string]string{"version": packVersion})
		if err := b.WriteFile(out, key); err != nil {
			fmtErr("build package: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"package_version": packVersion,
				"path":            out,
				"store_kinds":     kinds,
			})
			return
		}
		fmt.Printf("Built package %s -> %s\n", color.Version(packVersion), color.Success(out))
		fmt.Printf("  Payloads: %s\n", strings.Join(kinds, ", "))
	},
}

var packInspectCmd = &cobra.Command{
	Use:   "inspect <package.qup>",
	Short: "Show package manifest and verify digests",
	Long: `Show an update package's manifest and verify its payload digests.

With --key the manifest signature is verified against that public key as
well; without it only structure and digests are checked.

Examples:
  quorum pack inspect 2026.08.1.qup
  quorum pack inspect 2026.08.1.qup --key update_verify.pem`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmtErr("read package: %v", err)
			os.Exit(1)
		}

		p, err := pack.Parse(data, inspectMaxPayloadBytes)
		if err != nil {
			fmtErr("parse package: %v", err)
			os.Exit(1)
		}

		digestErr := p.VerifyPayloads()

		var sigState string
		var sigErr error
		if inspectKeyPath != "" {
			pub, err := integrity.LoadPublicKey(inspectKeyPath)
			if err != nil {
				fmtErr("load verify key: %v", err)
				os.Exit(1)
			}
			sigErr = p.VerifySignature(pub)
			sigState = "ok"
			if sigErr != nil {
				sigState = "invalid"
			}
		}

		if jsonOutput {
			payload := map[string]any{
				"manifest":   p.Manifest,
				"digests_ok": digestErr == nil,
				"size_bytes": len(data),
			}
			if sigState != "" {
				payload["signature"] = sigState
			}
			outputJSON(payload)
			if digestErr != nil || sigErr != nil {
				os.Exit(1)
			}
			return
		}

		fmt.Printf("Package: %s\n", color.Version(p.Manifest.PackageVersion))
		fmt.Printf("  Created: %s\n", p.Manifest.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Format:  %d\n", p.Manifest.FormatVersion)
		fmt.Println("  Payloads:")
		for _, kind := range p.Manifest.Kinds() {
			e := p.Manifest.Entries[kind]
			fmt.Printf("    %-14s %-10s %-6s %8d bytes  sha512 %s\n",
				kind, color.Version(e.Version), e.Encoding, e.Size, color.Dim(e.SHA512.Short()))
		}

		if digestErr != nil {
			fmt.Printf("  Payload digests: %s (%v)\n", color.Error("MISMATCH"), digestErr)
		} else {
			fmt.Printf("  Payload digests: %s\n", color.Success("OK"))
		}
		if sigState != "" {
			if sigErr != nil {
				fmt.Printf("  Signature: %s (%v)\n", color.Error("INVALID"), sigErr)
			} else {
				fmt.Printf("  Signature: %s\n", color.Success("OK"))
			}
		}
		if digestErr != nil || sigErr != nil {
			os.Exit(1)
		}
	},
}

var packTemplateCmd = &cobra.Command{
	Use:   "template <kind>",
	Short: "Print a starter payload document for a store kind",
	Long: `Print a starter payload document for a store kind to stdout.

The document is YAML ready for 'quorum pack build'. Valid kinds:
indicators, patterns, rules, anomaly_model.

Examples:
  quorum pack template rules > rules.yaml
  quorum pack template indicators > ioc.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := model.StoreKind(args[0])
		tpl, ok := payloadTemplates[kind]
		if !ok {
			fmt.Fprintln(os.Stderr, formatKindNotFoundError(args[0]))
			os.Exit(1)
		}
		fmt.Print(tpl)
	},
}

// addPayloadFlags parses --payload kind=path[@version] values, normalizes
// each source document and stages it on the builder.
func addPayloadFlags(b *pack.Builder, specs []string, defaultVersion string) ([]string, error) {
	var kinds []string
	for _, spec := range specs {
		name, rest, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --payload %q (want kind=path[@version])", spec)
		}
		kind := model.StoreKind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("invalid --payload %q: unknown store kind %q", spec, name)
		}

		path := rest
		version := defaultVersion
		if at := strings.LastIndex(rest, "@"); at > 0 {
			path, version = rest[:at], rest[at+1:]
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload %s: %w", kind, err)
		}
		doc, err := pack.NormalizeSource(src)
		if err != nil {
			return nil, fmt.Errorf("normalize payload %s: %w", kind, err)
		}
		if err := b.AddPayload(kind, version, doc); err != nil {
			return nil, err
		}
		kinds = append(kinds, string(kind))
	}
	return kinds, nil
}

var payloadTemplates = map[model.StoreKind]string{
	model.StoreIndicators: `# Indicator-of-compromise store payload.
# Every list is optional; hashes are matched case-insensitively.
version: ""
ips:
  - 203.0.113.9
domains:
  - malware.example
hashes:
  - 275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f
processes:
  - mimikatz.exe
`,
	model.StorePatterns: `# TTP pattern store payload. All tests of a pattern must match.
# Ops: equals, contains, prefix, suffix, regex.
version: ""
patterns:
  - id: T1110
    name: brute force
    tactic: credential-access
    technique: T1110
    weight: 0.7
    tests:
      - field: raw_message
        op: contains
        value: failed password
`,
	model.StoreRules: `# Detection rule store payload. 'where' composes all/any/not over
# field tests; numeric ops gt/gte/lt/lte parse field values on demand.
version: ""
rules:
  - id: failed-login-burst
    title: Burst of failed logins
    weight: 0.8
    where:
      all:
        - field: source_type
          op: equals
          value: auth
        - field: fail_count
          op: gte
          value: 10
`,
	model.StoreAnomalyModel: `# Anomaly model store payload: logistic regression over the built-in
# record featurizer. Vector lengths must equal dim.
format: logistic/1
featurizer_version: 1
dim: 3
mean: [0, 0, 0]
scale: [1, 1, 1]
weights: [0.1, 0.2, 0.3]
intercept: -1.0
`,
}

func init() {
	packBuildCmd.Flags().StringVar(&packVersion, "version", "", "package version, e.g. 2026.08.1")
	packBuildCmd.Flags().StringVar(&packKeyPath, "key", "", "path to the RSA signing key (PEM)")
	packBuildCmd.Flags().StringVar(&packOut, "out", "", "output path ({version} and {date} expand)")
	packBuildCmd.Flags().StringArrayVar(&packPayloads, "payload", nil, "payload spec kind=path[@version] (repeatable)")
	packBuildCmd.Flags().StringVar(&packCreatedAt, "created-at", "", "pin the manifest timestamp (RFC3339) for reproducible builds")
	packBuildCmd.Flags().BoolVar(&packNoCompress, "no-compress", false, "store payloads without gzip encoding")
	packInspectCmd.Flags().StringVar(&inspectKeyPath, "key", "", "public key (PEM) to verify the manifest signature")
	packCmd.AddCommand(packBuildCmd)
	packCmd.AddCommand(packInspectCmd)
	packCmd.AddCommand(packTemplateCmd)
	rootCmd.AddCommand(packCmd)
}
