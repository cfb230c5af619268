package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/knolabs/daela/pkg/errorsx"
)

func TestSendBookingLinkPostsJSONWithoutAuth(t *testing.T) {
	var got map[string]string
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		authHeader = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{WebhookURL: srv.URL, APIToken: "tok"}, srv.Client())
	if err := c.SendBookingLink(context.Background(), "bob@example.com", "Bob"); err != nil {
		t.Fatalf("send error: %v", err)
	}
	if got["email"] != "bob@example.com" || got["name"] != "Bob" {
		t.Fatalf("unexpected body %+v", got)
	}
	if authHeader != "" {
		t.Fatalf("webhook must not carry the CRM token")
	}
}

func TestNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{WebhookURL: srv.URL}, srv.Client())
	err := c.SendBookingLink(context.Background(), "bob@example.com", "Bob")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonCRMStatus) {
		t.Fatalf("expected crm_status reason, got %s", errorsx.Reason(err))
	}
}

func TestHasBookedTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if r.URL.Query().Get("email") != "bob@example.com" {
			t.Errorf("unexpected email query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"contacts":[{"id":"c1","tags":["lead"]},{"id":"c2","tags":["livekit_appointment_booked"]}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{LookupURL: srv.URL + "/contacts/lookup", APIToken: "tok"}, srv.Client())
	booked, err := c.HasBookedTag(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("lookup error: %v", err)
	}
	if !booked {
		t.Fatalf("expected booked tag to be found")
	}
}

func TestCreateContactReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email     string   `json:"email"`
			FirstName string   `json:"firstName"`
			Tags      []string `json:"tags"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.FirstName != "Ann" || len(body.Tags) != 1 || body.Tags[0] != "new_dental_patient" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"contact":{"id":"abc123"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ContactURL: srv.URL}, srv.Client())
	id, err := c.CreateContact(context.Background(), "ann@example.com", "Ann")
	if err != nil || id != "abc123" {
		t.Fatalf("expected id abc123, got %q err=%v", id, err)
	}
}

func TestUpdateContactIssueUsesPutOnContactPath(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{ContactURL: srv.URL + "/contacts/"}, srv.Client())
	if err := c.UpdateContactIssue(context.Background(), "abc123", "chipped tooth"); err != nil {
		t.Fatalf("update error: %v", err)
	}
	if method != http.MethodPut || path != "/contacts/abc123" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
}

func TestFreeSlotsOrdersByDateAndSkipsMetadata(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{
			"2024-10-18":{"slots":["2024-10-18T09:00:00+01:00"]},
			"traceId":"xyz",
			"2024-10-17":{"slots":["2024-10-17T03:30:00+01:00","2024-10-17T04:00:00+01:00"]}
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{SlotsURL: srv.URL, CalendarID: "cal-1"}, srv.Client())
	start := time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)
	slots, err := c.FreeSlots(context.Background(), start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("slots error: %v", err)
	}
	if len(slots) != 3 || slots[0] != "2024-10-17T03:30:00+01:00" {
		t.Fatalf("unexpected slots %v", slots)
	}
	if query["calendarId"] != "cal-1" || query["timezone"] != "Europe/London" {
		t.Fatalf("unexpected query %+v", query)
	}
	if query["startDate"] != "1729123200000" {
		t.Fatalf("expected epoch ms start, got %s", query["startDate"])
	}
}

func TestBookSlotSendsPlaceholderPhone(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"id":"appt-1"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BookURL: srv.URL, CalendarID: "cal-1"}, srv.Client())
	if err := c.BookSlot(context.Background(), "2024-10-17T03:30:00+01:00", "bob@example.com"); err != nil {
		t.Fatalf("book error: %v", err)
	}
	if body["phone"] != "+0000000000" || body["selectedTimezone"] != "Europe/London" || body["calendarId"] != "cal-1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestMissingEndpointFailsWithoutRequest(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.LookupContacts(context.Background(), "bob@example.com")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}
