// Package api serves a read-only HTTP view over a directory of record
// files: listing, decoded headers and row/column selections.
package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/mbaird/sfile/internal/logger"
	"github.com/mbaird/sfile/pkg/sfile"
)

// defaultRowLimit caps a rows request that names no explicit rows.
const defaultRowLimit = 1000

type Server struct {
	root string
	log  logger.Logger
}

// NewServer serves the record files under root.
func NewServer(root string, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{root: root, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/files", s.handleListFiles)
	e.GET("/v1/files/:name", s.handleFileInfo)
	e.GET("/v1/files/:name/header", s.handleHeader)
	e.GET("/v1/files/:name/rows", s.handleRows)
}

func (s *Server) handleListFiles(c *echo.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return writeErrorResponse(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rec") {
			continue
		}
		info, err := s.fileInfo(entry.Name())
		if err != nil {
			s.log.Warn("skipping unreadable file", "name", entry.Name(), "err", err)
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return writeJSON(c, http.StatusOK, map[string]any{"files": infos})
}

func (s *Server) handleFileInfo(c *echo.Context) error {
	name, err := s.cleanName(c.Param("name"))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	info, err := s.fileInfo(name)
	if err != nil {
		return s.writeOpenError(c, name, err)
	}
	return writeJSON(c, http.StatusOK, info)
}

func (s *Server) handleHeader(c *echo.Context) error {
	name, err := s.cleanName(c.Param("name"))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	hdr, err := sfile.ReadHeader(filepath.Join(s.root, name))
	if err != nil {
		return s.writeOpenError(c, name, err)
	}
	size, _ := hdr.Int64("_SIZE")
	return writeJSON(c, http.StatusOK, HeaderResponse{
		Name:   name,
		Size:   size,
		Header: hdr.Map(),
	})
}

func (s *Server) handleRows(c *echo.Context) error {
	name, err := s.cleanName(c.Param("name"))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	rows, err := parseRowsParam(c.QueryParam("rows"))
	if err != nil {
		return writeBadRequest(c, "rows: "+err.Error())
	}
	cols := parseColumnsParam(c.QueryParam("columns"))

	f, err := sfile.Open(filepath.Join(s.root, name), sfile.ModeRead)
	if err != nil {
		return s.writeOpenError(c, name, err)
	}
	defer f.Close()

	if rows == nil {
		start := int64(0)
		if raw := c.QueryParam("start"); raw != "" {
			if start, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return writeBadRequest(c, "start: "+err.Error())
			}
		}
		limit := int64(defaultRowLimit)
		if raw := c.QueryParam("limit"); raw != "" {
			if limit, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return writeBadRequest(c, "limit: "+err.Error())
			}
		}
		rows = sfile.Span(start, start+limit).Rows(f.Size())
	}

	var args []any
	args = append(args, sfile.Rows(rows))
	if cols != nil {
		args = append(args, cols)
	}
	recs, err := f.Read(args...)
	if err != nil {
		switch {
		case errors.Is(err, sfile.ErrBadColumn), errors.Is(err, sfile.ErrRowRange), errors.Is(err, sfile.ErrBadSelector):
			return writeBadRequest(c, err.Error())
		default:
			return writeErrorResponse(c, http.StatusInternalServerError, "server_error", err.Error())
		}
	}

	// Fieldless files decode whole, so cut down to the requested rows.
	if !recs.Descriptor().HasFields() && int64(recs.Len()) > int64(len(rows)) {
		inRange := rows[:0]
		for _, row := range rows {
			if row < int64(recs.Len()) {
				inRange = append(inRange, row)
			}
		}
		if recs, err = recs.Select(inRange, nil); err != nil {
			return writeErrorResponse(c, http.StatusInternalServerError, "server_error", err.Error())
		}
	}

	names := recs.Descriptor().Names()
	out := make([]map[string]any, recs.Len())
	for i := 0; i < recs.Len(); i++ {
		row := make(map[string]any, len(names))
		for _, field := range names {
			v, err := recs.Value(i, field)
			if err != nil {
				return writeErrorResponse(c, http.StatusInternalServerError, "server_error", err.Error())
			}
			key := field
			if key == "" {
				key = "value"
			}
			row[key] = v
		}
		out[i] = row
	}

	resp := RowsResponse{
		Name:    name,
		Columns: names,
		Rows:    out,
		Total:   f.Size(),
	}
	if len(resp.Columns) == 1 && resp.Columns[0] == "" {
		resp.Columns = []string{"value"}
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) fileInfo(name string) (FileInfo, error) {
	path := filepath.Join(s.root, name)
	f, err := sfile.Open(path, sfile.ModeRead)
	if err != nil {
		return FileInfo{}, err
	}
	defer f.Close()

	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}

	info := FileInfo{
		Name:      name,
		Size:      f.Size(),
		Delim:     f.Delim(),
		HasFields: f.Descriptor().HasFields(),
		Bytes:     st.Size(),
	}
	if info.HasFields {
		info.Fields = f.Descriptor().Names()
	}
	return info, nil
}

// cleanName rejects path traversal in the :name parameter.
func (s *Server) cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.New("invalid file name")
	}
	return name, nil
}

func (s *Server) writeOpenError(c *echo.Context, name string, err error) error {
	if errors.Is(err, sfile.ErrNotFound) {
		return writeNotFound(c, "no such file: "+name)
	}
	s.log.Error("open failed", "name", name, "err", err)
	return writeErrorResponse(c, http.StatusInternalServerError, "server_error", err.Error())
}
