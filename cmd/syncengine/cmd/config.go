package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/syncevo/syncengine/internal/appconfig"
	"github.com/syncevo/syncengine/internal/configtree"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the local peer configuration tree",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured peer names",
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := openTreeFromConfig()
		if err != nil {
			return err
		}
		reader := &treeConfigReader{tree: tree}
		names := reader.GetConfigs()
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <peer>",
	Short: "Show one peer's configuration and source sub-nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := openTreeFromConfig()
		if err != nil {
			return err
		}
		reader := &treeConfigReader{tree: tree}
		nodes, err := reader.GetConfig(args[0])
		if err != nil {
			return err
		}
		if props, ok := nodes[""]; ok {
			fmt.Println("[" + args[0] + "]")
			printProps(props)
		}
		for name, props := range nodes {
			if name == "" {
				continue
			}
			fmt.Printf("[%s/sources/%s]\n", args[0], name)
			printProps(props)
		}
		return nil
	},
}

func printProps(props map[string]string) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, props[k])
	}
}

func openTreeFromConfig() (*configtree.Tree, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	return configtree.NewTree(cfg.Storage.ConfigHome, 256)
}

func init() {
	configCmd.AddCommand(configListCmd, configShowCmd)
}
