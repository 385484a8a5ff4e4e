package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/signalsfoundry/scenario-resimulator/core"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to temp files.
const multipartMemory = 8 << 20

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, badRequest("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, badRequest("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := core.SimulateRequest{ScenarioName: r.FormValue("scenarioName")}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Left empty; the service rejects it alongside a missing name.
	case err != nil:
		writeError(w, r, badRequest("read upload: %v", err))
		return
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, badRequest("read upload: %v", err))
			return
		}
		req.Filename = header.Filename
		req.Model = data
	}

	table, err := s.svc.Simulate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeTable(w, r, table)
}

// resimulateBody is the /resimulate payload.
type resimulateBody struct {
	BaseScenarioName text `json:"base_scenario_name"`
	VariableToModify text `json:"variable_to_modify"`
	NewValue         text `json:"new_value"`
	StartTime        text `json:"start_time"`
}

// text accepts a JSON string or number. Numbers keep their literal spelling
// so the service parses them exactly as it parses strings.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected a string or number, got %s", b)
		}
		*t = text(n)
		return nil
	}
}

func (s *Server) handleResimulate(w http.ResponseWriter, r *http.Request) {
	var body resimulateBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, badRequest("invalid JSON body: %v", err))
		return
	}

	table, err := s.svc.Resimulate(r.Context(), core.ResimulateRequest{
		BaseScenarioName: string(body.BaseScenarioName),
		VariableToModify: string(body.VariableToModify),
		NewValue:         string(body.NewValue),
		StartTime:        string(body.StartTime),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeTable(w, r, table)
}
