// Package crm talks to the clinic's contact/calendar REST API and the
// booking-link webhook.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/knolabs/daela/pkg/errorsx"
)

type Config struct {
	WebhookURL       string        `mapstructure:"webhook_url"`
	LookupURL        string        `mapstructure:"lookup_url"`
	ContactURL       string        `mapstructure:"contact_url"`
	SlotsURL         string        `mapstructure:"slots_url"`
	BookURL          string        `mapstructure:"book_url"`
	APIToken         string        `mapstructure:"api_token"`
	CalendarID       string        `mapstructure:"calendar_id"`
	Timezone         string        `mapstructure:"timezone"`
	BookedTag        string        `mapstructure:"booked_tag"`
	NewPatientTag    string        `mapstructure:"new_patient_tag"`
	PlaceholderPhone string        `mapstructure:"placeholder_phone"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Timezone == "" {
		c.Timezone = "Europe/London"
	}
	if c.BookedTag == "" {
		c.BookedTag = "livekit_appointment_booked"
	}
	if c.NewPatientTag == "" {
		c.NewPatientTag = "new_dental_patient"
	}
	if c.PlaceholderPhone == "" {
		c.PlaceholderPhone = "+0000000000"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm %s: status %d: %s", e.Op, e.Status, e.Body)
}

type Contact struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Tags  []string `json:"tags"`
}

// Client issues one synchronous request per call and never retries.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) Config() Config { return c.cfg }

// SendBookingLink posts {email, name} to the booking webhook, which mails
// the patient a booking link.
func (c *Client) SendBookingLink(ctx context.Context, email, name string) error {
	body := map[string]string{"email": email, "name": name}
	return c.do(ctx, "send_booking_link", http.MethodPost, c.cfg.WebhookURL, body, false, nil)
}

// LookupContacts returns the contacts registered under email.
func (c *Client) LookupContacts(ctx context.Context, email string) ([]Contact, error) {
	u, err := withQuery(c.cfg.LookupURL, url.Values{"email": {email}})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCRMRequest)
	}
	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := c.do(ctx, "lookup_contacts", http.MethodGet, u, nil, true, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// HasBookedTag reports whether any contact for email carries the booked tag.
func (c *Client) HasBookedTag(ctx context.Context, email string) (bool, error) {
	contacts, err := c.LookupContacts(ctx, email)
	if err != nil {
		return false, err
	}
	for _, contact := range contacts {
		for _, tag := range contact.Tags {
			if tag == c.cfg.BookedTag {
				return true, nil
			}
		}
	}
	return false, nil
}

// CreateContact registers a new patient and returns the CRM contact id.
func (c *Client) CreateContact(ctx context.Context, email, firstName string) (string, error) {
	body := map[string]any{
		"email":     email,
		"firstName": firstName,
		"tags":      []string{c.cfg.NewPatientTag},
	}
	var out struct {
		Contact Contact `json:"contact"`
	}
	if err := c.do(ctx, "create_contact", http.MethodPost, c.cfg.ContactURL, body, true, &out); err != nil {
		return "", err
	}
	if out.Contact.ID == "" {
		return "", errorsx.Wrap(fmt.Errorf("crm create_contact: response without contact id"), errorsx.ReasonCRMDecode)
	}
	return out.Contact.ID, nil
}

// UpdateContactIssue stores the patient's issue description on the contact.
func (c *Client) UpdateContactIssue(ctx context.Context, contactID, issue string) error {
	u := strings.TrimRight(c.cfg.ContactURL, "/") + "/" + url.PathEscape(contactID)
	body := map[string]any{
		"customField": map[string]string{"describe_your_issue": issue},
	}
	return c.do(ctx, "update_contact", http.MethodPut, u, body, true, nil)
}

// FreeSlots lists free calendar slots between start and end, earliest
// date first. The API answers with an object keyed by date; keys that do
// not hold a slot list are skipped.
func (c *Client) FreeSlots(ctx context.Context, start, end time.Time) ([]string, error) {
	u, err := withQuery(c.cfg.SlotsURL, url.Values{
		"calendarId": {c.cfg.CalendarID},
		"startDate":  {strconv.FormatInt(start.UnixMilli(), 10)},
		"endDate":    {strconv.FormatInt(end.UnixMilli(), 10)},
		"timezone":   {c.cfg.Timezone},
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCRMRequest)
	}
	var raw map[string]json.RawMessage
	if err := c.do(ctx, "free_slots", http.MethodGet, u, nil, true, &raw); err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(raw))
	for k := range raw {
		dates = append(dates, k)
	}
	sort.Strings(dates)
	var slots []string
	for _, date := range dates {
		var day struct {
			Slots []string `json:"slots"`
		}
		if err := json.Unmarshal(raw[date], &day); err != nil {
			continue
		}
		slots = append(slots, day.Slots...)
	}
	return slots, nil
}

// BookSlot books slot on the configured calendar for email.
func (c *Client) BookSlot(ctx context.Context, slot, email string) error {
	body := map[string]string{
		"calendarId":       c.cfg.CalendarID,
		"selectedTimezone": c.cfg.Timezone,
		"selectedSlot":     slot,
		"email":            email,
		"phone":            c.cfg.PlaceholderPhone,
	}
	return c.do(ctx, "book_slot", http.MethodPost, c.cfg.BookURL, body, true, nil)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body any, auth bool, out any) error {
	if strings.TrimSpace(endpoint) == "" {
		return errorsx.Wrap(fmt.Errorf("crm %s: endpoint not configured", op), errorsx.ReasonCRMRequest)
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonCRMRequest)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("crm %s: %w", op, err), errorsx.ReasonCRMRequest)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if auth && c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("crm %s: %w", op, err), errorsx.ReasonCRMRequest)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errorsx.Wrap(&StatusError{Op: op, Status: resp.StatusCode, Body: string(b)}, errorsx.ReasonCRMStatus)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorsx.Wrap(fmt.Errorf("crm %s: decode: %w", op, err), errorsx.ReasonCRMDecode)
	}
	return nil
}

func withQuery(endpoint string, params url.Values) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("crm: endpoint not configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
