// cmd/affinity-engine/group.go
package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"office-affinity/internal/common/logger"
	"office-affinity/internal/engine"
	"office-affinity/pkg/roster"
)

var (
	groupRoster  string
	groupMinSize int
	groupMaxSize int
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Form groups once from a roster file",
	Long: `Reads a roster JSON file, forms affinity groups and prints them as JSON.
Nothing is persisted and no calendar is contacted.`,
	RunE: runGroup,
}

func init() {
	groupCmd.Flags().StringVarP(&groupRoster, "roster", "r", "roster.json", "roster file to group")
	groupCmd.Flags().IntVar(&groupMinSize, "min", 2, "minimum group size")
	groupCmd.Flags().IntVar(&groupMaxSize, "max", 4, "maximum group size")
}

func runGroup(cmd *cobra.Command, args []string) error {
	r, err := roster.Load(groupRoster)
	if err != nil {
		return err
	}
	profiles, err := r.ToProfiles()
	if err != nil {
		return err
	}

	cfg := engine.LoadConfig()
	cfg.MinSize, cfg.MaxSize = groupMinSize, groupMaxSize
	eng, err := engine.New(cfg, engine.Dependencies{Logger: logger.NewNoOpLogger()})
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	groups, err := eng.FormGroups(cmd.Context(), profiles, groupMinSize, groupMaxSize)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"version": r.Version,
		"groups":  groups,
	})
}
