package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run        Run
		outputPath sql.NullString
		inferURL   sql.NullString
		status     string
		errMsg     sql.NullString
		startedRaw string
		finished   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.ManifestPath,
		&outputPath,
		&run.AudioDir,
		&inferURL,
		&run.Concurrency,
		&status,
		&run.Total,
		&run.Succeeded,
		&run.Skipped,
		&run.Failed,
		&errMsg,
		&startedRaw,
		&finished,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.OutputPath = outputPath.String
	run.InferURL = inferURL.String
	run.Status = RunStatus(status)
	run.ErrorMessage = errMsg.String
	run.StartedAt = parseTime(startedRaw)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
