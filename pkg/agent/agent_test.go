package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/knolabs/daela/pkg/adapters/tts"
	"github.com/knolabs/daela/pkg/config"
	"github.com/knolabs/daela/pkg/llm"
	providermock "github.com/knolabs/daela/pkg/providers/mock"
	"github.com/knolabs/daela/pkg/room"
	roommock "github.com/knolabs/daela/pkg/room/mock"
)

type fakeCRM struct{}

func (fakeCRM) SendBookingLink(ctx context.Context, email, name string) error { return nil }
func (fakeCRM) HasBookedTag(ctx context.Context, email string) (bool, error) { return false, nil }
func (fakeCRM) CreateContact(ctx context.Context, email, first string) (string, error) {
	return "c1", nil
}
func (fakeCRM) UpdateContactIssue(ctx context.Context, contactID, issue string) error { return nil }
func (fakeCRM) FreeSlots(ctx context.Context, start, end time.Time) ([]string, error) {
	return nil, nil
}
func (fakeCRM) BookSlot(ctx context.Context, slot, email string) error { return nil }

type stubConnector struct {
	mu    sync.Mutex
	rooms map[string]*roommock.Room
	joins int
	err   error
}

func (c *stubConnector) Join(ctx context.Context, name string) (room.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins++
	if c.err != nil {
		return nil, c.err
	}
	r := roommock.New(name)
	c.rooms[name] = r
	return r, nil
}

func (c *stubConnector) Room(name string) *roommock.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[name]
}

func (c *stubConnector) Joins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joins
}

func testConfig() config.Config {
	return config.Config{
		Profile: "dental",
		Vendors: config.VendorsConfig{LLM: config.VendorConfig{Provider: "mock"}},
		Room:    config.VendorConfig{Provider: "mock"},
	}
}

func newTestAgent(t *testing.T, cfg config.Config, conn *stubConnector) *Agent {
	t.Helper()
	providers := NewProviderRegistry()
	providers.RegisterRoom("mock", func(config.Config) (Connector, error) { return conn, nil })
	providers.RegisterLLM("MOCK", func(config.Config) (llm.LLMAdapter, error) {
		return providermock.NewLLMAdapter(providermock.LLMConfig{ResponseText: "hello there"}), nil
	})
	providers.RegisterTTS("mock", func(cfg config.Config, roomName string) (tts.StreamingTTS, error) {
		return providermock.NewTTS(providermock.TTSConfig{RoomName: roomName}), nil
	})
	a, err := New(Options{Config: cfg, Providers: providers, CRM: fakeCRM{}, DrainTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	t.Cleanup(func() { _ = a.Drain() })
	return a
}

func waitSaid(t *testing.T, r *roommock.Room, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.SaidCh():
			if strings.Contains(got, want) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, said %v", want, r.Said())
		}
	}
}

func waitCount(t *testing.T, a *Agent, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for a.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d sessions, got %d", want, a.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatchStartsOneSessionPerRoom(t *testing.T) {
	conn := &stubConnector{rooms: map[string]*roommock.Room{}}
	a := newTestAgent(t, testConfig(), conn)

	sess, created, err := a.Dispatch(context.Background(), "room-1")
	if err != nil || !created {
		t.Fatalf("dispatch: created=%v err=%v", created, err)
	}
	if sess.TraceID == "" || sess.ID() == "" {
		t.Fatalf("expected trace and session ids")
	}
	waitSaid(t, conn.Room("room-1"), "I'm Daela")

	again, created, err := a.Dispatch(context.Background(), "room-1")
	if err != nil || created || again != sess {
		t.Fatalf("expected existing session, created=%v err=%v", created, err)
	}
	if conn.Joins() != 1 {
		t.Fatalf("expected a single join, got %d", conn.Joins())
	}

	conn.Room("room-1").Push(room.ChatMessage{Sender: "patient", Text: "hi"})
	waitSaid(t, conn.Room("room-1"), "hello there")

	_ = conn.Room("room-1").Close()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end after room closed")
	}
	waitCount(t, a, 0)
}

func TestDispatchJoinFailure(t *testing.T) {
	conn := &stubConnector{rooms: map[string]*roommock.Room{}, err: errors.New("no route")}
	a := newTestAgent(t, testConfig(), conn)
	if _, _, err := a.Dispatch(context.Background(), "room-1"); err == nil {
		t.Fatalf("expected join error")
	}
	if a.Count() != 0 {
		t.Fatalf("expected no sessions")
	}
}

func TestDrainStopsSessionsAndRejectsNewRooms(t *testing.T) {
	conn := &stubConnector{rooms: map[string]*roommock.Room{}}
	a := newTestAgent(t, testConfig(), conn)
	sess, _, err := a.Dispatch(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := a.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	select {
	case <-sess.Done():
	default:
		t.Fatalf("expected session finished after drain")
	}
	if _, _, err := a.Dispatch(context.Background(), "room-2"); !errors.Is(err, ErrDraining) {
		t.Fatalf("expected ErrDraining, got %v", err)
	}
}

func TestVoiceRoomPublishesSynthesizedAudio(t *testing.T) {
	cfg := testConfig()
	cfg.Vendors.TTS = config.VendorConfig{Provider: "mock"}
	conn := &stubConnector{rooms: map[string]*roommock.Room{}}
	a := newTestAgent(t, cfg, conn)
	if _, _, err := a.Dispatch(context.Background(), "room-1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r := conn.Room("room-1")
	waitSaid(t, r, "I'm Daela")
	deadline := time.Now().Add(2 * time.Second)
	for len(r.Audio()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected synthesized audio published")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnregisteredProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Handoff = config.HandoffConfig{Provider: "carrier_pigeon", PhoneNumber: "+1"}
	providers := NewProviderRegistry()
	providers.RegisterRoom("mock", func(config.Config) (Connector, error) { return &stubConnector{}, nil })
	_, err := New(Options{Config: cfg, Providers: providers, CRM: fakeCRM{}})
	if err == nil || !strings.Contains(err.Error(), "handoff provider not registered") {
		t.Fatalf("expected handoff registration error, got %v", err)
	}
}

func TestHTTPHandlers(t *testing.T) {
	conn := &stubConnector{rooms: map[string]*roommock.Room{}}
	a := newTestAgent(t, testConfig(), conn)
	h := a.Handler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewBufferString(`{"room":"room-9"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dispatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Room != "room-9" || !resp.Created || resp.SessionID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewBufferString(`{"room":"room-9"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing session, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewBufferString(`{"room":" "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health healthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &health)
	if rec.Code != http.StatusOK || health.Sessions != 1 || health.Status != "ok" {
		t.Fatalf("unexpected health %d %+v", rec.Code, health)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dispatch", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
