package api

// FileInfo describes one record file in the served directory.
type FileInfo struct {
	Name      string   `json:"name"`
	Size      int64    `json:"size"`
	Delim     string   `json:"delim,omitempty"`
	HasFields bool     `json:"has_fields"`
	Fields    []string `json:"fields,omitempty"`
	Bytes     int64    `json:"bytes"`
}

// HeaderResponse is the decoded header of one file.
type HeaderResponse struct {
	Name   string         `json:"name"`
	Size   int64          `json:"size"`
	Header map[string]any `json:"header"`
}

// RowsResponse carries a row/column selection rendered as JSON objects.
type RowsResponse struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Total   int64            `json:"total"`
}

// ResponseError is the error body shape.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
