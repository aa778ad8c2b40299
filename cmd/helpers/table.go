package helpers

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintTable writes rows under headers as a borderless, left-aligned table.
func PrintTable(w io.Writer, headers []string, data [][]any) error {
	if len(data) == 0 {
		_, err := fmt.Fprintln(w, "No data to display")
		return err
	}

	cnf := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
	}

	symbols := tw.NewSymbolCustom("Edgegate").
		WithRow(" ").
		WithColumn(" ").
		WithTopLeft("").
		WithTopMid(" ").
		WithTopRight(" ").
		WithMidLeft(" ").
		WithCenter(" ").
		WithMidRight(" ").
		WithBottomLeft(" ").
		WithBottomMid(" ").
		WithBottomRight(" ")

	rd := tw.Rendition{Symbols: symbols}
	rd.Settings.Lines.ShowHeaderLine = tw.Off

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(rd)),
		tablewriter.WithConfig(cnf),
	)

	headerAny := make([]any, len(headers))
	for i, h := range headers {
		headerAny[i] = h
	}
	table.Header(headerAny...)
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
