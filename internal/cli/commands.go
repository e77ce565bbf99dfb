package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/vtrash/vtrash/internal/trash"
)

func (c *CLI) Remove(masks []string) error {
	slog.Debug("cli.remove started")
	defer slog.Debug("cli.remove finished")

	if len(masks) == 0 {
		return errNoMasks
	}

	var total trash.Delta
	var errs []error
	for _, mask := range masks {
		delta, err := c.manager.Remove(mask, c.recursive())
		total = total.Add(delta)
		if err != nil {
			errs = append(errs, fmt.Errorf("rm %s: %w", mask, err))
			if !c.config.Core.Force {
				break
			}
		}
	}
	printSummary(c.stdout, total, "removed")
	return formatErrors(errs)
}

func (c *CLI) Restore(masks []string) error {
	slog.Debug("cli.restore started")
	defer slog.Debug("cli.restore finished")

	if len(masks) == 0 {
		return errNoMasks
	}

	var total trash.Delta
	var errs []error
	for _, mask := range masks {
		delta, err := c.manager.Restore(mask, c.recursive(), c.option.Trash.Old)
		total = total.Add(delta)
		if err != nil {
			errs = append(errs, fmt.Errorf("rs %s: %w", mask, err))
			if !c.config.Core.Force {
				break
			}
		}
	}
	printSummary(c.stdout, total, "restored")
	return formatErrors(errs)
}

func (c *CLI) List(masks []string) error {
	if len(masks) == 0 {
		return errNoMasks
	}

	var items []trash.Item
	for _, mask := range masks {
		found, err := c.manager.List(mask, c.recursive(), c.option.Trash.All)
		if err != nil {
			return fmt.Errorf("ls %s: %w", mask, err)
		}
		items = append(items, found...)
	}
	renderItems(c.stdout, items, time.Now())
	return nil
}

// Clear deletes versions for good. Without masks it empties the trash.
func (c *CLI) Clear(masks []string) error {
	slog.Debug("cli.clear started")
	defer slog.Debug("cli.clear finished")

	if len(masks) == 0 {
		masks = []string{""}
	}

	var total trash.Delta
	var errs []error
	for _, mask := range masks {
		delta, err := c.manager.Clean(mask, c.recursive(), c.option.Trash.Old)
		total = total.Add(delta)
		if err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", mask, err))
			if !c.config.Core.Force {
				break
			}
		}
	}
	printSummary(c.stdout, total, "cleaned")
	return formatErrors(errs)
}

func (c *CLI) Autoclear() error {
	total, err := c.manager.Autoclean()
	printSummary(c.stdout, total, "cleaned")
	return err
}

func printSummary(w io.Writer, d trash.Delta, verb string) {
	fmt.Fprintf(w, "%d files (%s) was %s.\n", d.Count, humanize.Bytes(uint64(max(d.Size, 0))), verb)
}

func renderItems(w io.Writer, items []trash.Item, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no files in trash")
		return
	}

	dirColor := color.New(color.FgBlue).SprintFunc()
	dateColor := color.New(color.FgHiBlack).SprintFunc()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Deleted", "Size", "Path"})
	table.SetHeaderColor(
		tablewriter.Colors{tablewriter.Bold},
		tablewriter.Colors{tablewriter.Bold},
		tablewriter.Colors{tablewriter.Bold},
	)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

	for _, item := range items {
		dir, name := filepath.Split(item.Path)
		table.Append([]string{
			dateColor(humanize.RelTime(item.DeletedAt, now, "ago", "from now")),
			humanize.Bytes(uint64(item.Size)),
			dirColor(dir) + name,
		})
	}
	table.Render()
}

func formatErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	lines := make([]string, 0, len(errs)+1)
	lines = append(lines, fmt.Sprintf("%d errors occurred:", len(errs)))
	for _, err := range errs {
		lines = append(lines, "  - "+err.Error())
	}
	return errors.New(strings.Join(lines, "\n"))
}
