// qobs variants [path]
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/qobs-build/qobs/internal/builder"
	"github.com/qobs-build/qobs/internal/msg"
	"github.com/qobs-build/qobs/internal/native"
	"github.com/spf13/cobra"
)

type variantInfo struct {
	Name          string         `json:"name"`
	BuildType     string         `json:"buildType"`
	TargetMachine string         `json:"targetMachine"`
	Linkage       string         `json:"linkage,omitempty"`
	Buildable     bool           `json:"buildable"`
	Development   bool           `json:"development"`
	Runtime       string         `json:"runtime"`
	Link          string         `json:"link,omitempty"`
	Attributes    map[string]any `json:"attributes"`
}

func describeVariants(ids []native.Identity, host native.TargetMachine) []variantInfo {
	dev, hasDev := native.DevelopmentIdentity(ids, host)

	infos := make([]variantInfo, 0, len(ids))
	for _, id := range ids {
		info := variantInfo{
			Name:          id.Name,
			BuildType:     id.BuildType.Name,
			TargetMachine: id.TargetMachine.String(),
			Linkage:       string(id.Linkage),
			Buildable:     id.BuildableOn(host.OS),
			Development:   hasDev && dev.Name == id.Name,
			Runtime:       id.Runtime.Name,
			Attributes:    id.Variant.Attributes().Map(),
		}
		if id.Link != nil {
			info.Link = id.Link.Name
		}
		infos = append(infos, info)
	}
	return infos
}

func writeVariants(w io.Writer, infos []variantInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	for _, info := range infos {
		name := info.Name
		if name == "" {
			name = "(default)"
		}
		marker := " "
		if info.Development {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-32s %-8s %-14s %-7s %s", marker, name, info.BuildType, info.TargetMachine, info.Linkage, formatAttributes(info.Attributes))
		if !info.Buildable {
			line = color.HiBlackString("%s", line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// formatAttributes renders attributes as sorted key=value pairs
func formatAttributes(attrs map[string]any) string {
	pairs := make([]string, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	return strings.Join(pairs, " ")
}

var flagJSON bool

var variantsCmd = &cobra.Command{
	Use:   "variants [target path]",
	Short: "List the variants of the package",
	Long: `List the variants of the package. The development variant, built when no
variant is selected, is marked with *. Variants that can't be built on this
machine are greyed out.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target := "."
		if len(args) > 0 {
			target = args[0]
		}
		b, err := builder.NewBuilderInDirectory(target)
		if err != nil {
			msg.Fatal("%v", err)
		}
		ids, err := b.Identities()
		if err != nil {
			msg.Fatal("%v", err)
		}
		if err := writeVariants(os.Stdout, describeVariants(ids, b.Host()), flagJSON); err != nil {
			msg.Fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(variantsCmd)
	variantsCmd.Flags().BoolVar(&flagJSON, "json", false, "Print variants as JSON")
}
