// internal/membership/handler.go
package membership

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxBodyBytes bounds a submission body.
const maxBodyBytes = 64 << 10

// formValue accepts a JSON string or number. null and absent leave it unset.
// A numeric zero is kept but does not count as present, so a required
// numeric field cannot be satisfied by 0.
type formValue struct {
	value string
	set   bool
	zero  bool
}

func (v *formValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = formValue{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = formValue{value: s, set: true}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		f, err := n.Float64()
		*v = formValue{value: n.String(), set: true, zero: err == nil && f == 0}
		return nil
	}
}

func (v formValue) present() bool { return v.set && v.value != "" && !v.zero }

func (v formValue) optional() *string {
	if !v.set {
		return nil
	}
	s := v.value
	return &s
}

type submitRequest struct {
	Anrede   formValue `json:"anrede"`
	Name     formValue `json:"name"`
	Vorname  formValue `json:"vorname"`
	Adresse  formValue `json:"adresse"`
	PLZ      formValue `json:"plz"`
	Ort      formValue `json:"ort"`
	Email    formValue `json:"email"`
	Tel      formValue `json:"tel"`
	Status   formValue `json:"status"`
	Betrag   formValue `json:"betrag"`
	Beitritt formValue `json:"beitritt"`
	Referenz formValue `json:"referenz"`
}

// toRecord validates the required fields and builds the record.
func (req submitRequest) toRecord() (MemberRecord, error) {
	required := []struct {
		name  string
		value formValue
	}{
		{"anrede", req.Anrede},
		{"name", req.Name},
		{"vorname", req.Vorname},
		{"adresse", req.Adresse},
		{"plz", req.PLZ},
		{"ort", req.Ort},
		{"email", req.Email},
		{"status", req.Status},
		{"betrag", req.Betrag},
	}
	var missing []string
	for _, f := range required {
		if !f.value.present() {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return MemberRecord{}, &ValidationError{Fields: missing}
	}

	return MemberRecord{
		Salutation: req.Anrede.value,
		LastName:   req.Name.value,
		FirstName:  req.Vorname.value,
		Address:    req.Adresse.value,
		PostalCode: req.PLZ.value,
		City:       req.Ort.value,
		Email:      req.Email.value,
		Phone:      req.Tel.optional(),
		Status:     req.Status.value,
		Amount:     req.Betrag.value,
		JoinYear:   req.Beitritt.value,
		Reference:  req.Referenz.optional(),
	}, nil
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Handler struct {
	service   Service
	configErr error
	secrets   []string
	logger    *zap.Logger
}

// NewHandler serves submissions through service. Any secrets given are
// scrubbed from diagnostics returned to clients.
func NewHandler(service Service, logger *zap.Logger, secrets ...string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, secrets: secrets, logger: logger}
}

// NewMisconfiguredHandler answers every submission with a configuration
// error without touching any store.
func NewMisconfiguredHandler(configErr error, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{configErr: configErr, logger: logger}
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		h.handleSubmit(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.configErr != nil || h.service == nil {
		h.logger.Error("submission rejected: server misconfigured", zap.Error(h.configErr))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server configuration error"})
		return
	}

	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}

	record, err := req.toRecord()
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required fields", Fields: verr.Fields})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if _, err := h.service.Append(r.Context(), record); err != nil {
		details := h.redact(err.Error())
		h.logger.Error("failed to append member",
			zap.String("error", details),
			zap.Bool("conflict", errors.Is(err, ErrConflict)),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to process submission",
			Details: details,
		})
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Member added successfully"})
}

// decodeBody reads exactly one JSON value of at most maxBodyBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

func (h *Handler) redact(msg string) string {
	for _, s := range h.secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, "[REDACTED]")
		}
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
