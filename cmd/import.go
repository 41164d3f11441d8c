package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

var (
	importXLSXPath string
	importSheet    string
	importColumn   string
	importPriority int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue scraping jobs from a permit spreadsheet",
	Long:  "Reads an XLSX export (e.g. a city's mobile food vendor permit list), pulls page URLs from the named column, and queues one job per URL.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		urls, err := readURLColumn(importXLSXPath, importSheet, importColumn)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return eris.Errorf("no URLs found in column %q", importColumn)
		}

		scheduledAt := time.Now().UTC()
		created := 0
		for _, u := range urls {
			if _, err := st.CreateJob(ctx, u, importPriority, scheduledAt); err != nil {
				return eris.Wrapf(err, "enqueue %s", u)
			}
			created++
		}

		zap.L().Info("import complete",
			zap.String("file", importXLSXPath),
			zap.Int("created", created),
		)
		return nil
	},
}

// readURLColumn locates the named column by header and returns its non-empty
// values, deduplicated.
func readURLColumn(path, sheetName, column string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "open spreadsheet")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("spreadsheet has no sheets")
		}
		sheet = f.Sheets[0]
	}

	if len(sheet.Rows) == 0 {
		return nil, eris.New("spreadsheet is empty")
	}

	colIdx := -1
	for j, cell := range sheet.Rows[0].Cells {
		if strings.EqualFold(strings.TrimSpace(cell.String()), column) {
			colIdx = j
			break
		}
	}
	if colIdx < 0 {
		return nil, eris.Errorf("column %q not found in header row", column)
	}

	seen := make(map[string]bool)
	var urls []string
	for _, row := range sheet.Rows[1:] {
		if colIdx >= len(row.Cells) {
			continue
		}
		u := strings.TrimSpace(row.Cells[colIdx].String())
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls, nil
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importColumn, "column", "website", "header name of the URL column")
	importCmd.Flags().IntVar(&importPriority, "priority", 0, "priority for created jobs")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
