package tools

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strings"

	"mejohncorg/internal/models"
)

const exportRowLimit = 1000

// exportableDatasets whitelists what the export tool may read. The dataset
// name is the only caller-controlled input; queries are fixed.
var exportableDatasets = map[string]string{
	"agents": "SELECT id, name, type, status, created_at FROM agents ORDER BY created_at",
	"tools":  "SELECT name, capability_name, action_name, is_active FROM tool_definitions ORDER BY name",
}

// DataExportTool exports a whitelisted dataset as CSV. Destructive by policy:
// bulk reads leave the system, so the dispatch gate applies.
type DataExportTool struct {
	db *sql.DB
}

func NewDataExportTool(db *sql.DB) *DataExportTool {
	return &DataExportTool{db: db}
}

func (t *DataExportTool) Definition() models.ToolDefinition {
	datasets := make([]string, 0, len(exportableDatasets))
	for name := range exportableDatasets {
		datasets = append(datasets, name)
	}
	return models.ToolDefinition{
		Name:        "export_data",
		Description: "Export a named dataset as CSV. Available datasets: " + strings.Join(datasets, ", ") + ".",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dataset": map[string]any{
					"type":        "string",
					"description": "Name of the dataset to export.",
				},
			},
			"required": []string{"dataset"},
		},
		CapabilityName: "data",
		ActionName:     "data.export",
		IsActive:       true,
	}
}

func (t *DataExportTool) Execute(ctx context.Context, agentID string, args map[string]any) (string, error) {
	dataset, err := stringArg(args, "dataset")
	if err != nil {
		return "", err
	}
	query, ok := exportableDatasets[dataset]
	if !ok {
		return "", fmt.Errorf("unknown dataset: %s", dataset)
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("export query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}

	values := make([]sql.RawBytes, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if count >= exportRowLimit {
			break
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		record := make([]string, len(cols))
		for i, v := range values {
			record[i] = string(v)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("export scan failed: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("csv write failed: %w", err)
	}

	return fmt.Sprintf("dataset %s (%d rows)\n%s", dataset, count, buf.String()), nil
}
