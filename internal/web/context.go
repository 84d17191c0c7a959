package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// permission resolves the policy for the request's actor on table.
func (s *Server) permission(r *http.Request, table string) (core.Permission, error) {
	if s.perms == nil {
		return s.cfg.DefaultPermission(), nil
	}
	return s.perms.Lookup(r.Context(), core.ActorFromContext(r.Context()), table)
}

// upload is a multipart import request.
type upload struct {
	File     core.FileInput
	Table    string
	Options  core.ImportOptions
	Mappings []core.FieldMapping
}

// readUpload reads the "file" part plus the optional "table", "options" and
// "mappings" fields. options and mappings are JSON.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest(err, "File exceeds the maximum upload size", "Split the file into smaller chunks")
		}
		return nil, badRequest(err, "The upload form could not be read", "Send a multipart form with a file field")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest(err, "No file was selected", "Please select a file to import")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > maxSize {
		return nil, badRequest(fmt.Errorf("upload larger than %d bytes", maxSize),
			"File exceeds the maximum upload size", "Split the file into smaller chunks")
	}

	u := &upload{
		File: core.FileInput{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		},
		Table: r.FormValue("table"),
	}
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &u.Options); err != nil {
			return nil, badRequest(err, "Invalid import options", "Send options as a JSON object")
		}
	}
	if raw := r.FormValue("mappings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &u.Mappings); err != nil {
			return nil, badRequest(err, "Invalid field mappings", "Send mappings as a JSON array")
		}
	}
	if err := s.checkOptions(u.Options); err != nil {
		return nil, err
	}
	return u, nil
}

// checkOptions validates request-supplied import options.
func (s *Server) checkOptions(o core.ImportOptions) error {
	req := optionsRequest{
		Format:        string(o.Format),
		Delimiter:     o.Delimiter,
		OnDuplicate:   string(o.OnDuplicate),
		MaxRows:       o.MaxRows,
		BatchSize:     o.BatchSize,
		SkipFirstRows: o.SkipFirstRows,
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(err, "Invalid import options", validationHint(err))
	}
	return nil
}

// decodeJSON decodes a JSON body into v and validates it.
func (s *Server) decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, s.cfg.Import.MaxFileSize))
	if err := dec.Decode(v); err != nil {
		return badRequest(err, "The request body is not valid JSON", "Check the request format")
	}
	if err := s.validate.Struct(v); err != nil {
		return badRequest(err, "The request is incomplete or invalid", validationHint(err))
	}
	return nil
}

// queryInt parses a non-negative integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return def
	}
	return i
}
