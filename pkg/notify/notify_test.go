package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/YoungLulu/auto-digest/pkg/report"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

func testDigest() *Digest {
	summaries := []summarize.Summary{
		{Title: "low", URL: "https://a", Source: source.KindPaper, RelevanceScore: 3, CategoryTags: summarize.StringList{"research"}},
		{Title: "high", URL: "https://b", Source: source.KindRepository, RelevanceScore: 9, CategoryTags: summarize.StringList{"tool"}},
		{Title: "mid", URL: "https://c", Source: source.KindRepository, RelevanceScore: 6},
	}
	return NewDigest("2024-01-15", summaries, nil)
}

func TestNewDigestRanksTopItems(t *testing.T) {
	d := testDigest()
	assert.Equal(t, 3, d.Stats.TotalItems)
	assert.Equal(t, 2, d.Stats.Sources["repository"])
	require.Len(t, d.Top, 3)
	assert.Equal(t, "high", d.Top[0].Title)
	assert.Equal(t, "tool", d.Top[0].Category)
	assert.Equal(t, "low", d.Top[2].Title)
	assert.Equal(t, "🧠 AI Coding Digest - 2024-01-15", d.Subject())
}

func TestNewDigestCapsTopItems(t *testing.T) {
	summaries := make([]summarize.Summary, 8)
	d := NewDigest("2024-01-15", summaries, nil)
	assert.Len(t, d.Top, topItems)
}

type stubNotifier struct {
	name string
	err  error
	got  *Digest
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(_ context.Context, d *Digest) error {
	s.got = d
	return s.err
}

func TestManagerBroadcastContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	first := &stubNotifier{name: "first", err: boom}
	second := &stubNotifier{name: "second"}

	m := NewManager([]Notifier{first, second}, nil)
	assert.True(t, m.HasNotifiers())

	d := testDigest()
	err := m.Broadcast(context.Background(), d)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "first")
	assert.Same(t, d, second.got)
}

func TestManagerWithoutNotifiers(t *testing.T) {
	m := NewManager(nil, nil)
	assert.False(t, m.HasNotifiers())
	assert.NoError(t, m.Broadcast(context.Background(), testDigest()))
}

func TestSlackSend(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), testDigest()))

	blocks := body["blocks"].([]any)
	require.Len(t, blocks, 3)
	header := blocks[0].(map[string]any)["text"].(map[string]any)
	assert.Equal(t, "🧠 AI Coding Digest - 2024-01-15", header["text"])
}

func TestSlackSendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSlack(srv.URL).Send(context.Background(), testDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDiscordSend(t *testing.T) {
	var body struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Timestamp   string `json:"timestamp"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL)
	d.now = func() time.Time { return time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, d.Send(context.Background(), testDigest()))

	require.Len(t, body.Embeds, 1)
	assert.Equal(t, "2024-01-15T08:00:00Z", body.Embeds[0].Timestamp)
	assert.Contains(t, body.Embeds[0].Description, "[high](https://b)")
}

func TestWebhookSignsBody(t *testing.T) {
	var (
		sig  string
		raw  []byte
		sent Digest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature-256")
		raw, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), testDigest()))
	assert.Equal(t, "sha256="+Sign("s3cret", raw), sig)
	require.NoError(t, json.Unmarshal(raw, &sent))
	assert.Equal(t, "2024-01-15", sent.Date)
}

func TestWebhookWithoutSecret(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature-256")
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), testDigest()))
	assert.Empty(t, sig)
}

func writeReports(t *testing.T) report.Files {
	t.Helper()
	dir := t.TempDir()
	files := report.Files{
		report.FormatJSON:     filepath.Join(dir, "daily_2024-01-15.json"),
		report.FormatMarkdown: filepath.Join(dir, "daily_2024-01-15.md"),
		report.FormatHTML:     filepath.Join(dir, "daily_2024-01-15.html"),
	}
	require.NoError(t, os.WriteFile(files[report.FormatJSON], []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(files[report.FormatMarkdown], []byte("# digest"), 0o644))
	require.NoError(t, os.WriteFile(files[report.FormatHTML], []byte("<h1>full report</h1>"), 0o644))
	return files
}

func TestEmailBuildMessage(t *testing.T) {
	d := testDigest()
	d.Files = writeReports(t)
	d.Files[report.FormatPDF] = filepath.Join(t.TempDir(), "missing.pdf")

	e := NewEmail(EmailConfig{
		Host:            "smtp.example.com",
		Username:        "bot@example.com",
		To:              []string{"team@example.com"},
		SendAttachments: true,
	})
	msg, err := e.buildMessage(d)
	require.NoError(t, err)

	subject := msg.GetGenHeader(mail.HeaderSubject)
	require.Len(t, subject, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject[0])
	require.NoError(t, err)
	assert.Equal(t, d.Subject(), decoded)
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"team@example.com"}, rcpts)

	parts := msg.GetParts()
	require.NotEmpty(t, parts)
	content, err := parts[0].GetContent()
	require.NoError(t, err)
	assert.Equal(t, "<h1>full report</h1>", string(content))

	var names []string
	for _, f := range msg.GetAttachments() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"daily_2024-01-15.json", "daily_2024-01-15.md"}, names)
}

func TestEmailFallbackBody(t *testing.T) {
	e := NewEmail(EmailConfig{Host: "smtp.example.com", From: "bot@example.com", To: []string{"a@example.com"}})
	msg, err := e.buildMessage(testDigest())
	require.NoError(t, err)

	content, err := msg.GetParts()[0].GetContent()
	require.NoError(t, err)
	assert.Contains(t, string(content), "Total items: <strong>3</strong>")
	assert.Contains(t, string(content), `<a href="https://b">high</a>`)
	assert.Empty(t, msg.GetAttachments())
}

func TestEmailNoRecipients(t *testing.T) {
	e := NewEmail(EmailConfig{Host: "smtp.example.com", From: "bot@example.com"})
	err := e.Send(context.Background(), testDigest())
	assert.ErrorIs(t, err, ErrNoRecipients)
}

// fakeSMTP accepts one plaintext session and records the DATA payload.
type fakeSMTP struct {
	ln   net.Listener
	mu   sync.Mutex
	data strings.Builder
	done chan struct{}
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { io.WriteString(conn, line+"\r\n") }
	reply("220 fake ESMTP")

	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if inData {
			if line == ".\r\n" {
				inData = false
				reply("250 queued")
				continue
			}
			s.mu.Lock()
			s.data.WriteString(line)
			s.mu.Unlock()
			continue
		}

		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 fake")
		case cmd == "DATA":
			inData = true
			reply("354 go ahead")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func (s *fakeSMTP) received() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.String()
}

func TestEmailSendOverSMTP(t *testing.T) {
	srv := newFakeSMTP(t)

	e := NewEmail(EmailConfig{
		Host:    "127.0.0.1",
		Port:    srv.port(),
		From:    "bot@example.com",
		To:      []string{"team@example.com"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, e.Send(context.Background(), testDigest()))

	select {
	case <-srv.done:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not finish")
	}
	got := srv.received()
	assert.Contains(t, got, "To: <team@example.com>")
	assert.Contains(t, got, "Content-Type: text/html")
}
