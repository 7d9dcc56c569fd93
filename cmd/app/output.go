package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/ui"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(b))
	return err
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(stdout, "no results")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printRecords prints id, status and created first, then every other data
// key in sorted order.
func printRecords(items []domain.Record) {
	keys := map[string]struct{}{}
	for _, rec := range items {
		for k := range rec.Data {
			if k != "status" {
				keys[k] = struct{}{}
			}
		}
	}
	cols := make([]string, 0, len(keys))
	for k := range keys {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	headers := append([]string{"ID", "STATUS", "CREATED"}, upper(cols)...)
	rows := make([][]string, 0, len(items))
	for _, rec := range items {
		row := []string{rec.ID, orDash(rec.String("status")), formatTime(rec.Created)}
		for _, k := range cols {
			row = append(row, orDash(ui.FormatValue(rec.Data[k])))
		}
		rows = append(rows, row)
	}
	printTable(headers, rows)
}

func printRecord(rec domain.Record) {
	rows := [][2]string{
		{"id", rec.ID},
		{"collection", rec.Collection},
		{"created", formatTime(rec.Created)},
	}
	keys := make([]string, 0, len(rec.Data))
	for k := range rec.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, [2]string{k, orDash(ui.FormatValue(rec.Data[k]))})
	}
	printKV(rows)
}

func printCollections(items []domain.Collection) {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		names := make([]string, 0, len(c.Fields))
		for _, f := range c.Fields {
			names = append(names, f.Name)
		}
		rows = append(rows, []string{c.ID, c.Name, c.Type, strconv.Itoa(len(c.Fields)), strings.Join(names, ",")})
	}
	printTable([]string{"ID", "NAME", "TYPE", "FIELDS", "FIELD NAMES"}, rows)
}

func printUsers(items []domain.User) {
	rows := make([][]string, 0, len(items))
	for _, u := range items {
		rows = append(rows, []string{u.ID, u.Email, orDash(u.Name), u.Role, formatTime(u.Created)})
	}
	printTable([]string{"ID", "EMAIL", "NAME", "ROLE", "CREATED"}, rows)
}

func printAudit(items []domain.AuditLog) {
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(a.ID), 10),
			formatTime(a.CreatedAt),
			orDash(a.ActorUserID),
			a.Action,
			a.TargetType + ":" + a.TargetID,
			orDash(a.Metadata),
		})
	}
	printTable([]string{"ID", "TIME", "ACTOR", "ACTION", "TARGET", "METADATA"}, rows)
}

func printMigrations(items []domain.MigrationStatus) {
	rows := make([][]string, 0, len(items))
	for _, m := range items {
		state, at := "pending", "-"
		if m.Applied {
			state = "applied"
		}
		if m.At != nil {
			at = formatTime(*m.At)
		}
		rows = append(rows, []string{m.Name, state, at})
	}
	printTable([]string{"MIGRATION", "STATE", "APPLIED AT"}, rows)
}

func printVersion(info domain.VersionInfo) {
	rows := [][2]string{
		{"current", info.Current},
		{"latest", info.Latest},
		{"update available", strconv.FormatBool(info.UpdateAvailable)},
	}
	if info.Timestamp != "" {
		rows = append(rows, [2]string{"timestamp", info.Timestamp})
	}
	if info.Error != "" {
		rows = append(rows, [2]string{"error", info.Error})
	}
	printKV(rows)
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
