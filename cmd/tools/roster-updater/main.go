// cmd/tools/roster-updater/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"office-affinity/internal/catalog"
	"office-affinity/internal/common/config"
	"office-affinity/internal/common/database"
	"office-affinity/internal/common/logger"
	"office-affinity/pkg/roster"
)

var rosterPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, exportCmd} {
		fs.StringVar(&rosterPath, "path", "configs/roster.json", "Path to roster file")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Profile ID (e.g., ana)")
	displayName := addCmd.String("displayName", "", "Display Name")
	interests := addCmd.String("interests", "", "Comma-separated interests")
	activities := addCmd.String("activities", "", "Comma-separated activities")
	days := addCmd.String("days", "", "Comma-separated preferred weekdays (e.g., tue,thu)")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Profile ID to update")
	field := updateCmd.String("field", "", "Field to update (displayName, interests, activities, days)")
	value := updateCmd.String("value", "", "New value for the field, comma-separated for lists")

	// Export command flags
	version := exportCmd.String("version", time.Now().UTC().Format("2006.01.02"), "Roster version to write")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" {
			fmt.Println("Error: id is required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		err = addProfile(roster.Entry{
			ID:            *idAdd,
			DisplayName:   *displayName,
			Interests:     splitList(*interests),
			Activities:    splitList(*activities),
			PreferredDays: splitList(*days),
		})
		if err == nil {
			fmt.Printf("Added profile: %s\n", *idAdd)
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" {
			fmt.Println("Error: id and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		err = updateProfile(*idUpdate, *field, *value)
		if err == nil {
			fmt.Printf("Updated profile %s, field %s to %s\n", *idUpdate, *field, *value)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		err = validateRoster()

	case "export":
		exportCmd.Parse(os.Args[2:])
		err = exportCatalog(*version)

	case "help":
		help()
		return

	default:
		help()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func addProfile(entry roster.Entry) error {
	r, err := roster.Load(rosterPath)
	if err != nil {
		// If file doesn't exist, create new roster
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load roster: %w", err)
		}
		r = &roster.Roster{Version: "1.0.0", Profiles: []roster.Entry{}}
	}

	if err := r.Add(entry); err != nil {
		return err
	}
	r.LastUpdated = time.Now().Format(time.RFC3339)
	return r.Save(rosterPath)
}

func updateProfile(id, field, value string) error {
	r, err := roster.Load(rosterPath)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	entry := r.Find(id)
	if entry == nil {
		return fmt.Errorf("profile with ID %s not found", id)
	}
	switch field {
	case "displayName":
		entry.DisplayName = value
	case "interests":
		entry.Interests = splitList(value)
	case "activities":
		entry.Activities = splitList(value)
	case "days":
		entry.PreferredDays = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	r.LastUpdated = time.Now().Format(time.RFC3339)
	return r.Save(rosterPath)
}

func validateRoster() error {
	r, err := roster.Load(rosterPath)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	profiles, err := r.ToProfiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return fmt.Errorf("roster contains no profiles")
	}

	fmt.Printf("Roster validation passed. Found %d profiles.\n", len(profiles))
	return nil
}

// exportCatalog snapshots the PostgreSQL profile catalog into a roster file.
func exportCatalog(version string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	src := catalog.NewPostgresCatalog(pg, nil, 0, logger.NewNoOpLogger())
	profiles, err := src.ListProfiles(ctx)
	if err != nil {
		return err
	}

	r := roster.FromProfiles(version, profiles)
	r.LastUpdated = time.Now().Format(time.RFC3339)
	if err := r.Save(rosterPath); err != nil {
		return err
	}
	fmt.Printf("Exported %d profiles to %s\n", len(profiles), rosterPath)
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func help() {
	fmt.Print(`
Usage: roster-updater <command> [flags]

Commands:
  add      Add a profile to the roster
  update   Update an existing profile's field
  validate Validate the roster file
  export   Write the PostgreSQL profile catalog to a roster file
  help     Show this help message

Examples:
  roster-updater add -id ana -displayName "Ana" -interests chess,climbing -days tue,thu
  roster-updater update -id ana -field interests -value chess,go
  roster-updater validate -path configs/roster.json
  roster-updater export -path configs/roster.json

Use 'roster-updater <command> -h' for more information about a command.
` + "\n")
}
