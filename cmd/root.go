// qobs [path], qobs build [path]
package cmd

import (
	"fmt"
	"os"

	"github.com/qobs-build/qobs/internal/builder"
	"github.com/qobs-build/qobs/internal/msg"
	"github.com/spf13/cobra"
)

var (
	flagVariant   string
	flagProfile   string
	flagAll       bool
	flagGenerator EnumValue = NewEnumValue(builder.GeneratorQobs, map[string]string{
		builder.GeneratorQobs:   "Use Qobs's builder (default)",
		builder.GeneratorNinja:  "Generates build.ninja files",
		builder.GeneratorVS2022: "Generates Visual Studio 2022 project files",
	})
)

func selection() builder.Selection {
	return builder.Selection{Variant: flagVariant, Profile: flagProfile, All: flagAll}
}

func doBuild(cmd *cobra.Command, args []string) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	b, err := builder.NewBuilderInDirectory(target)
	if err != nil {
		msg.Fatal("%v", err)
	}
	built, err := b.Build(selection(), flagGenerator.Value())
	if err != nil {
		msg.Fatal("%v", err)
	}
	for _, id := range built {
		msg.Status("Finished", "%s", b.ArtifactPath(id))
	}
}

var rootCmd = &cobra.Command{
	Use:   "qobs [target path]",
	Short: "Quite OK Build System",
	Long: `Quite OK Build System

Every package is built in variants: one per combination of build type,
target machine and (for libraries) linkage. By default only the variant
best suited for development on this machine is built.`,
	Args: cobra.MaximumNArgs(1),
	Run:  doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Build the package",
	Long:  `Build the package. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	// qobs build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
	buildCmd.Flags().BoolVarP(&flagAll, "all", "a", false, "Build every variant buildable on this machine")
	rootCmd.Flags().BoolVarP(&flagAll, "all", "a", false, "Build every variant buildable on this machine")
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagVariant, "variant", "V", "", "Build the variant with this name (see `qobs variants`)")
	cmd.Flags().StringVarP(&flagProfile, "profile", "p", "", "Build the variants with this build type")
	cmd.Flags().VarP(&flagGenerator, "gen", "g", "Generator to build with, one of "+flagGenerator.HelpString())
	cmd.MarkFlagsMutuallyExclusive("variant", "profile")
	cmd.RegisterFlagCompletionFunc("gen", flagGenerator.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
