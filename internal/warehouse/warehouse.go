package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gemscope/internal/common"
)

// Warehouse handles dataset table lifecycle and column-level reads.
type Warehouse struct {
	client *Client
}

// New creates a warehouse backed by the given client.
func New(client *Client) *Warehouse {
	return &Warehouse{client: client}
}

// Ping verifies the underlying database connection, for health checks.
func (w *Warehouse) Ping(ctx context.Context) error {
	return w.client.db.PingContext(ctx)
}

// tableName maps a dataset ID onto its table name. IDs are restricted to
// the characters uuid.NewString and callers produce, which keeps the
// interpolated identifier safe.
func tableName(datasetID string) (string, error) {
	if datasetID == "" {
		return "", fmt.Errorf("empty dataset id: %w", common.ErrValidation)
	}
	for _, r := range datasetID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("dataset id %q contains unsupported characters: %w", datasetID, common.ErrValidation)
		}
	}
	return "ds_" + strings.ReplaceAll(datasetID, "-", "_"), nil
}

// quoteLiteral escapes a string for use as a SQL literal. DuckDB's
// read_csv_auto takes the file path as a literal, not a bind parameter.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// IngestCSV loads the CSV file at csvPath into the dataset's table,
// replacing any previous contents, and returns the row count and column
// names. Column types are inferred by DuckDB.
func (w *Warehouse) IngestCSV(ctx context.Context, datasetID, csvPath string) (int, []string, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return 0, nil, err
	}

	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, header=true)",
		table, quoteLiteral(csvPath),
	)
	if err := w.client.Exec(ctx, stmt); err != nil {
		return 0, nil, fmt.Errorf("ingest dataset %s: %w", datasetID, err)
	}

	rows, err := w.RowCount(ctx, datasetID)
	if err != nil {
		return 0, nil, err
	}
	cols, err := w.Columns(ctx, datasetID)
	if err != nil {
		return 0, nil, err
	}
	return rows, cols, nil
}

// Drop removes the dataset's table. Dropping a missing dataset is not an
// error.
func (w *Warehouse) Drop(ctx context.Context, datasetID string) error {
	table, err := tableName(datasetID)
	if err != nil {
		return err
	}
	return w.client.Exec(ctx, "DROP TABLE IF EXISTS "+table)
}

// Has reports whether the dataset's table exists.
func (w *Warehouse) Has(ctx context.Context, datasetID string) (bool, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return false, err
	}
	var count int
	err = w.client.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?", table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check dataset %s: %w", datasetID, err)
	}
	return count > 0, nil
}

// Columns returns the dataset's column names in schema order.
func (w *Warehouse) Columns(ctx context.Context, datasetID string) ([]string, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return nil, err
	}

	rows, err := w.client.Query(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position",
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("describe dataset %s: %w", datasetID, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, common.ErrNotFound)
	}
	return cols, rows.Err()
}

// RowCount returns the dataset's row count.
func (w *Warehouse) RowCount(ctx context.Context, datasetID string) (int, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return 0, err
	}
	var count int
	if err := w.client.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dataset %s: %w", datasetID, err)
	}
	return count, nil
}

// NumericStats holds SQL aggregates over one numeric column.
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// ColumnStats computes min, max, and mean of a numeric column.
func (w *Warehouse) ColumnStats(ctx context.Context, datasetID, column string) (NumericStats, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return NumericStats{}, err
	}
	if err := validColumn(column); err != nil {
		return NumericStats{}, err
	}

	var stats NumericStats
	query := fmt.Sprintf(
		"SELECT MIN(%s), MAX(%s), AVG(%s) FROM %s", column, column, column, table,
	)
	if err := w.client.QueryRow(ctx, query).Scan(&stats.Min, &stats.Max, &stats.Mean); err != nil {
		return NumericStats{}, fmt.Errorf("stats for %s.%s: %w", datasetID, column, err)
	}
	return stats, nil
}

// Mode returns the most frequent value of a column. Frequency ties break
// toward the smallest value so the result is deterministic.
func (w *Warehouse) Mode(ctx context.Context, datasetID, column string) (string, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return "", err
	}
	if err := validColumn(column); err != nil {
		return "", err
	}

	var mode string
	query := fmt.Sprintf(
		"SELECT %s FROM %s GROUP BY %s ORDER BY COUNT(*) DESC, %s ASC LIMIT 1",
		column, table, column, column,
	)
	if err := w.client.QueryRow(ctx, query).Scan(&mode); err != nil {
		return "", fmt.Errorf("mode for %s.%s: %w", datasetID, column, err)
	}
	return mode, nil
}

// DistinctValues returns the sorted distinct values of a column.
func (w *Warehouse) DistinctValues(ctx context.Context, datasetID, column string) ([]string, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return nil, err
	}
	if err := validColumn(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY %s", column, table, column)
	rows, err := w.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct values for %s.%s: %w", datasetID, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ReadFloats returns a numeric column as float64 values in row order.
func (w *Warehouse) ReadFloats(ctx context.Context, datasetID, column string) ([]float64, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return nil, err
	}
	if err := validColumn(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT CAST(%s AS DOUBLE) FROM %s", column, table)
	rows, err := w.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", datasetID, column, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ReadStrings returns a column as string values in row order.
func (w *Warehouse) ReadStrings(ctx context.Context, datasetID, column string) ([]string, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return nil, err
	}
	if err := validColumn(column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT CAST(%s AS VARCHAR) FROM %s", column, table)
	rows, err := w.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", datasetID, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ReadRows returns every row of the dataset as strings, for CSV export.
// Values are cast to VARCHAR in SQL; NULLs come back as empty strings.
func (w *Warehouse) ReadRows(ctx context.Context, datasetID string) ([]string, [][]string, error) {
	table, err := tableName(datasetID)
	if err != nil {
		return nil, nil, err
	}
	cols, err := w.Columns(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}

	selects := make([]string, len(cols))
	for i, c := range cols {
		if err := validColumn(c); err != nil {
			return nil, nil, err
		}
		selects[i] = fmt.Sprintf("CAST(%s AS VARCHAR)", c)
	}

	rows, err := w.client.Query(ctx, "SELECT "+strings.Join(selects, ", ")+" FROM "+table)
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset %s: %w", datasetID, err)
	}
	defer rows.Close()

	var out [][]string
	raw := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		record := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				record[i] = v.String
			}
		}
		out = append(out, record)
	}
	return cols, out, rows.Err()
}

// validColumn guards interpolated column identifiers.
func validColumn(column string) error {
	if column == "" {
		return fmt.Errorf("empty column name: %w", common.ErrValidation)
	}
	for _, r := range column {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("column %q contains unsupported characters: %w", column, common.ErrValidation)
		}
	}
	return nil
}
