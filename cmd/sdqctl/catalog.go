package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sdq-screen/internal/sdq"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the questionnaire catalog",
		RunE:  runCatalog,
	}
	cmd.Flags().String("band", "", "Only print one age band (2-4, 5-10, 11-17)")
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
	return cmd
}

func runCatalog(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	bands := catalog.Bands()
	if only, _ := cmd.Flags().GetString("band"); only != "" {
		bands = []sdq.Band{sdq.Band(only)}
	}

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	byBand := make(map[sdq.Band][]sdq.Question, len(bands))
	for _, band := range bands {
		questions, err := catalog.Questions(band)
		if err != nil {
			return err
		}
		byBand[band] = questions
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"version": catalog.Version(),
			"bands":   byBand,
		})
	}

	bold.Fprintf(out, "Catalog %s\n", catalog.Version())
	for _, band := range bands {
		cyan.Fprintf(out, "\nBand %s\n", band)
		for _, q := range byBand[band] {
			marker := ""
			if q.Reverse {
				marker = " (reverse)"
			}
			fmt.Fprintf(out, "%2d. %-60s %s%s\n", q.Index+1, q.Text, q.Subscale, marker)
		}
	}
	return nil
}
