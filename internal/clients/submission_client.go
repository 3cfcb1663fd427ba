// internal/clients/submission_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"memberledger/internal/membership"
)

// DefaultStatus is the membership status the registration form submits.
const DefaultStatus = "PM"

// SubmissionClient posts registrations to the submission endpoint the way the
// browser form does.
type SubmissionClient struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

func NewSubmissionClient(endpoint string, httpClient *http.Client) *SubmissionClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SubmissionClient{endpoint: endpoint, httpClient: httpClient, now: time.Now}
}

// SubmissionError is a non-2xx answer from the endpoint.
type SubmissionError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("submission failed with status %d: %s", e.StatusCode, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Submit formats the record like the form and posts it. It returns the
// endpoint's success message.
func (c *SubmissionClient) Submit(ctx context.Context, record membership.MemberRecord) (string, error) {
	record = c.Prepare(record)

	payload := map[string]string{
		"anrede":   record.Salutation,
		"name":     record.LastName,
		"vorname":  record.FirstName,
		"adresse":  record.Address,
		"plz":      record.PostalCode,
		"ort":      record.City,
		"email":    record.Email,
		"tel":      deref(record.Phone),
		"status":   record.Status,
		"betrag":   record.Amount,
		"beitritt": record.JoinYear,
		"referenz": deref(record.Reference),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Message: result.Error, Details: result.Details}
	}
	return result.Message, nil
}

// Prepare applies the form's client-side formatting: digits-only postal code
// of at most four characters, a non-negative fee, and defaults for status and
// join year.
func (c *SubmissionClient) Prepare(record membership.MemberRecord) membership.MemberRecord {
	record.PostalCode = SanitizePostalCode(record.PostalCode)
	record.Amount = SanitizeAmount(record.Amount)
	if record.Status == "" {
		record.Status = DefaultStatus
	}
	if record.JoinYear == "" {
		record.JoinYear = strconv.Itoa(c.now().Year())
	}
	return record
}

// SanitizePostalCode drops everything but ASCII digits and keeps the first four.
func SanitizePostalCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(r)
		if b.Len() == 4 {
			break
		}
	}
	return b.String()
}

// SanitizeAmount clamps negative amounts to "0". Anything that is not a
// number is passed through.
func SanitizeAmount(s string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err == nil && v < 0 {
		return "0"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
