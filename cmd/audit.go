package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairprop/fairprop-go/core"
)

var auditDate string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the scan audit trail",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the signature of every audit record",
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, err := openTrail()
		if err != nil {
			return err
		}
		defer trail.Close()

		checked, tampered, err := trail.VerifyAll()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d records checked\n", checked)
		if len(tampered) == 0 {
			fmt.Fprintln(out, "All signatures valid.")
			return nil
		}
		for _, id := range tampered {
			fmt.Fprintf(out, "  tampered: %s\n", id)
		}
		return fmt.Errorf("%d audit record(s) failed verification", len(tampered))
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show [audit-id]",
	Short: "Print one audit record, or every record of a day with --date",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && auditDate == "" {
			return errors.New("either an audit id or --date is required")
		}

		trail, err := openTrail()
		if err != nil {
			return err
		}
		defer trail.Close()

		if len(args) == 1 {
			record, err := trail.Find(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), record)
		}

		day, err := time.Parse("2006-01-02", auditDate)
		if err != nil {
			return fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
		}
		records, err := trail.ByDate(day)
		if err != nil {
			return err
		}
		if records == nil {
			records = []core.AuditRecord{}
		}
		return writeJSON(cmd.OutOrStdout(), records)
	},
}

func init() {
	auditShowCmd.Flags().StringVar(&auditDate, "date", "", "UTC day to list, as YYYY-MM-DD")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
}

// openTrail opens the configured trail whether or not scans are recording to it
func openTrail() (*core.AuditTrail, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	trail, err := core.NewAuditTrail(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	return trail, nil
}
