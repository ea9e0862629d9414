package models

// TabularInput is the immutable header/row input to one ingestion run.
type TabularInput struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ColumnMapping pairs a source CSV column with a destination ordinance
// column. Lookup during ingestion is by name, never by position.
type ColumnMapping struct {
	CSVColumn string `json:"csvColumn"`
	DBColumn  string `json:"dbColumn"`
}

// IngestRequest is the JSON body of the ingestion endpoint.
type IngestRequest struct {
	CSVData        TabularInput    `json:"csvData"`
	ColumnMappings []ColumnMapping `json:"columnMappings"`
}

// IngestReport aggregates the outcome of one ingestion run. ErrorCount
// always reflects the true total even though Errors is capped.
type IngestReport struct {
	SuccessCount   int      `json:"successCount"`
	ErrorCount     int      `json:"errorCount"`
	Errors         []string `json:"errors"`
	TotalProcessed int      `json:"totalProcessed"`
}
