package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"marketsuite-backend/lib/analysis"
)

var searchSort string

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search the doujin catalog.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := service.SearchItems(rootCtx, args[0], searchSort, 20, 1)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"title", "circle", "price", "rating", "reviews"})
		for _, item := range result.Items {
			t.AppendRow(table.Row{item.Title, item.Circle, item.Price, item.ReviewAverage, item.ReviewCount})
		}
		t.AppendFooter(table.Row{"total", "", "", "", result.TotalCount})
		t.Render()
		return nil
	},
}

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List the genres of the doujin floor.",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := service.GetGenres(rootCtx)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"id", "name"})
		for _, genre := range result.Genres {
			t.AppendRow(table.Row{genre.GenreID, genre.Name})
		}
		t.Render()
		return nil
	},
}

var circlesCmd = &cobra.Command{
	Use:   "circles <keyword>",
	Short: "Search circles by name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := service.SearchEntities(rootCtx, args[0])
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"id", "name"})
		for _, circle := range result.Circles {
			t.AppendRow(table.Row{circle.MakerID, circle.Name})
		}
		t.Render()
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <price|circle|genre|trend>",
	Short: "Build a market report over the top 100 ranked items.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := service.RunAnalysis(rootCtx, analysis.ReportType(args[0]))
		if err != nil {
			return err
		}
		fmt.Print(analysis.RenderText(result.Report))
		if result.StoreKey != "" {
			fmt.Printf("saved as %s\n", result.StoreKey)
		}
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recent persisted batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := service.LatestBatch(rootCtx)
		if err != nil {
			return err
		}

		fmt.Printf("batch %s (%d items, collected %s)\n",
			batch.Key(), len(batch.Items), batch.CollectedAt.Format("2006-01-02 15:04:05"))
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"title", "circle", "price", "rating", "reviews"})
		for _, item := range batch.Items {
			t.AppendRow(table.Row{item.Title, item.Circle, item.PriceAmount, item.Rating, item.CountValue})
		}
		t.Render()
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSort, "sort", "rank", "sort order: rank, date, price or review")
}
