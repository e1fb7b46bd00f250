package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPresent Status = "P"
	StatusAbsent  Status = "A"
)

type Event struct {
	ID            string    `json:"id"`
	DirectorateID string    `json:"directorateId"`
	SchoolID      string    `json:"schoolId"`
	Date          string    `json:"date"`
	ClassName     string    `json:"className"`
	StudentID     string    `json:"studentId"`
	Status        Status    `json:"status"`
	At            time.Time `json:"at"`
	Snapshot      string    `json:"snapshot,omitempty"`
}

func New(directorateID, schoolID, date, className, studentID string, status Status) Event {
	return Event{
		ID:            uuid.New().String(),
		DirectorateID: directorateID,
		SchoolID:      schoolID,
		Date:          date,
		ClassName:     className,
		StudentID:     studentID,
		Status:        status,
		At:            time.Now(),
	}
}

// Publisher hands an event to the outside recorder. Delivery is at most once:
// callers log failures and never retry.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type DeliveryError struct {
	EventID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver event %s: %v", e.EventID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Printf("[EVENT] %s %s/%s %s %s student=%s",
		event.Status, event.DirectorateID, event.SchoolID, event.Date, event.ClassName, event.StudentID)
	return nil
}

// HTTPRelay posts {"event": ...} to an attendance relay endpoint.
type HTTPRelay struct {
	url        string
	httpClient *http.Client
}

func NewHTTPRelay(url string) *HTTPRelay {
	return &HTTPRelay{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type relayRequest struct {
	Event Event `json:"event"`
}

type relayResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r *HTTPRelay) Publish(ctx context.Context, event Event) error {
	jsonData, err := json.Marshal(relayRequest{Event: event})
	if err != nil {
		return &DeliveryError{EventID: event.ID, Err: fmt.Errorf("failed to marshal event: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return &DeliveryError{EventID: event.ID, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{EventID: event.ID, Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &DeliveryError{EventID: event.ID, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{EventID: event.ID, Err: fmt.Errorf("relay returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))}
	}

	var relayResp relayResponse
	if err := json.Unmarshal(body, &relayResp); err == nil && !relayResp.OK && relayResp.Error != "" {
		return &DeliveryError{EventID: event.ID, Err: fmt.Errorf("relay rejected event: %s", relayResp.Error)}
	}

	return nil
}
