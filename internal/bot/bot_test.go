package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"jobfinder_bot/internal/aggregator"
	"jobfinder_bot/internal/config"
	"jobfinder_bot/internal/digest"
	"jobfinder_bot/internal/model"
	"jobfinder_bot/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID    int64
	Text      string
	ParseMode string
	Markup    *tgbotapi.InlineKeyboardMarkup
}

type mockAPI struct {
	mu       sync.Mutex
	sent     []sentMsg
	requests []tgbotapi.Chattable
	failFor  map[int64]bool
	updates  chan tgbotapi.Update
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	if m.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	s := sentMsg{ChatID: msg.ChatID, Text: msg.Text, ParseMode: msg.ParseMode}
	if kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
		s.Markup = &kb
	}
	m.mu.Lock()
	m.sent = append(m.sent, s)
	m.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, c)
	m.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if m.updates == nil {
		m.updates = make(chan tgbotapi.Update)
	}
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockAggregator struct {
	mu      sync.Mutex
	d       model.Digest
	panics  bool
	opts    []aggregator.Options
	sources [][]model.FeedSource
}

func (a *mockAggregator) Aggregate(_ context.Context, sources []model.FeedSource, opts aggregator.Options) model.Digest {
	if a.panics {
		panic("boom")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = append(a.opts, opts)
	a.sources = append(a.sources, sources)
	return a.d
}

type mockAsker struct {
	answer    string
	err       error
	questions []string
	forgotten []int64
}

func (a *mockAsker) Ask(_ context.Context, _ int64, q string) (string, error) {
	a.questions = append(a.questions, q)
	return a.answer, a.err
}

func (a *mockAsker) Forget(chatID int64) {
	a.forgotten = append(a.forgotten, chatID)
}

// --- helpers ---

var testSources = []model.FeedSource{
	{Key: "ssc", Name: "SSC", URL: "https://ssc.example/rss"},
	{Key: "rail", Name: "Railways", URL: "https://rail.example/rss"},
}

func sampleDigest() model.Digest {
	return model.Digest{Sections: []model.Section{{
		Source: testSources[0],
		Title:  "SSC Updates",
		Entries: []model.JobEntry{
			{Title: "SSC CGL 2026", Link: "https://ssc.example/cgl"},
			{Title: "SSC CHSL Clerk", Link: "https://ssc.example/chsl"},
		},
	}}}
}

func newTestBot(t *testing.T, d model.Digest) (*Bot, *mockAPI, *mockAggregator, storage.Storage) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "subscribers.txt"), log)

	api := &mockAPI{}
	agg := &mockAggregator{d: d}
	b := &Bot{
		api:   api,
		store: store,
		cfg: &config.Config{
			DigestTime: config.DigestTime{Hour: 8},
			Sources:    testSources,
			Limits:     config.DefaultLimits(),
		},
		agg: agg,
		log: log,
	}
	return b, api, agg, store
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: chatID, FirstName: "Asha"},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: chatID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: chatID, UserName: "asha"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func callbackData(kb *tgbotapi.InlineKeyboardMarkup) []string {
	if kb == nil {
		return nil
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			switch {
			case btn.URL != nil:
				out = append(out, "url:"+*btn.URL)
			case btn.CallbackData != nil:
				out = append(out, *btn.CallbackData)
			}
		}
	}
	return out
}

// --- tests ---

func TestHandleStart(t *testing.T) {
	b, api, _, _ := newTestBot(t, model.Digest{})
	b.handleUpdate(context.Background(), commandUpdate(100, "/start"))
	requireContains(t, api.lastText(), "Namaste Asha!")
	requireContains(t, api.lastText(), "08:00")
}

func TestHandleHelp(t *testing.T) {
	t.Run("without assistant", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.handleHelp(100)
		requireContains(t, api.lastText(), "/jobs")
		requireContains(t, api.lastText(), "/subscribe")
		if strings.Contains(api.lastText(), "/reset") {
			t.Error("help should not mention /reset without assistant")
		}
	})

	t.Run("with assistant", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.assistant = &mockAsker{}
		b.handleHelp(100)
		requireContains(t, api.lastText(), "/reset")
	})
}

func TestHandleJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("renders digest with controls", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.handleUpdate(ctx, commandUpdate(100, "/jobs"))

		got := api.last()
		requireContains(t, got.Text, "<b>💼 Latest Government Jobs</b>")
		requireContains(t, got.Text, "1. SSC CGL 2026")
		if diff := cmp.Diff(tgbotapi.ModeHTML, got.ParseMode); diff != "" {
			t.Errorf("parse mode (-want +got):\n%s", diff)
		}

		wantData := []string{"url:https://ssc.example/cgl", "url:https://ssc.example/chsl", "refresh", "categories"}
		if diff := cmp.Diff(wantData, callbackData(got.Markup)); diff != "" {
			t.Errorf("controls (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]aggregator.Options{{MaxEntries: 5}}, agg.opts); diff != "" {
			t.Errorf("aggregate options (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([][]model.FeedSource{testSources}, agg.sources); diff != "" {
			t.Errorf("sources (-want +got):\n%s", diff)
		}
	})

	t.Run("empty digest falls back without controls", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.handleJobs(ctx, 100, "")

		got := api.last()
		if diff := cmp.Diff(digest.NoUpdatesText, got.Text); diff != "" {
			t.Errorf("text (-want +got):\n%s", diff)
		}
		if got.Markup != nil {
			t.Error("fallback must not carry controls")
		}
	})

	t.Run("query filters titles", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.handleJobs(ctx, 100, "ssc -clerk")

		text := api.lastText()
		requireContains(t, text, "SSC CGL 2026")
		if strings.Contains(text, "CHSL") {
			t.Errorf("excluded title rendered:\n%s", text)
		}
		if diff := cmp.Diff(searchFetchCap, agg.opts[0].MaxEntries); diff != "" {
			t.Errorf("fetch cap for search (-want +got):\n%s", diff)
		}
	})

	t.Run("query with no matches", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, sampleDigest())
		b.handleJobs(ctx, 100, "railway")
		if diff := cmp.Diff(digest.NoUpdatesText, api.lastText()); diff != "" {
			t.Errorf("text (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.handleJobs(ctx, 100, "re:(")
		requireContains(t, api.lastText(), "Invalid search")
		if len(agg.opts) != 0 {
			t.Error("aggregation should not run for an invalid query")
		}
	})
}

func TestHandleSubscribe(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t, model.Digest{})

	b.handleUpdate(ctx, commandUpdate(100, "/subscribe"))
	requireContains(t, api.lastText(), "Subscribed!")

	b.handleUpdate(ctx, commandUpdate(100, "/subscribe"))
	requireContains(t, api.lastText(), "already subscribed")

	b.handleUpdate(ctx, commandUpdate(200, "/subscribe"))

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]int64{100, 200}, ids); diff != "" {
		t.Errorf("subscribers (-want +got):\n%s", diff)
	}
}

func TestHandleSourcesAndCategories(t *testing.T) {
	ctx := context.Background()
	b, api, _, _ := newTestBot(t, model.Digest{})

	b.handleUpdate(ctx, commandUpdate(100, "/sources"))
	requireContains(t, api.lastText(), "https://rail.example/rss")

	b.handleUpdate(ctx, commandUpdate(100, "/categories"))
	if diff := cmp.Diff([]string{"cat:ssc", "cat:rail"}, callbackData(api.last().Markup)); diff != "" {
		t.Errorf("category controls (-want +got):\n%s", diff)
	}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh re-aggregates", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.handleUpdate(ctx, callbackUpdate(100, "refresh"))
		b.handleUpdate(ctx, callbackUpdate(100, "refresh"))

		if diff := cmp.Diff(2, len(agg.opts)); diff != "" {
			t.Errorf("aggregations (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "SSC CGL 2026")
		if diff := cmp.Diff(2, len(api.requests)); diff != "" {
			t.Errorf("callback acks (-want +got):\n%s", diff)
		}
	})

	t.Run("category uses one source", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.handleUpdate(ctx, callbackUpdate(100, "cat:rail"))

		if diff := cmp.Diff([][]model.FeedSource{{testSources[1]}}, agg.sources); diff != "" {
			t.Errorf("sources (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "💼 Railways")
	})

	t.Run("unknown category", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.handleUpdate(ctx, callbackUpdate(100, "cat:navy"))
		requireContains(t, api.lastText(), "Unknown category")
		if len(agg.opts) != 0 {
			t.Error("unexpected aggregation")
		}
	})

	t.Run("categories picker", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, sampleDigest())
		b.handleUpdate(ctx, callbackUpdate(100, "categories"))
		requireContains(t, api.lastText(), "Choose a job category")
	})
}

func TestHandleText(t *testing.T) {
	ctx := context.Background()

	t.Run("hint without assistant", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.handleUpdate(ctx, textUpdate(100, "any bank jobs?"))
		requireContains(t, api.lastText(), "/jobs")
	})

	t.Run("assistant answers", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		asker := &mockAsker{answer: "IBPS PO applications close on 30 Oct."}
		b.assistant = asker

		b.handleUpdate(ctx, textUpdate(100, "when does IBPS PO close?"))
		if diff := cmp.Diff("IBPS PO applications close on 30 Oct.", api.lastText()); diff != "" {
			t.Errorf("answer (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"when does IBPS PO close?"}, asker.questions); diff != "" {
			t.Errorf("questions (-want +got):\n%s", diff)
		}
	})

	t.Run("assistant failure apologises", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.assistant = &mockAsker{err: errors.New("quota exceeded")}

		b.handleUpdate(ctx, textUpdate(100, "hello"))
		requireContains(t, api.lastText(), "Sorry")
	})

	t.Run("reset forgets", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		asker := &mockAsker{}
		b.assistant = asker

		b.handleUpdate(ctx, commandUpdate(100, "/reset"))
		requireContains(t, api.lastText(), "cleared")
		if diff := cmp.Diff([]int64{100}, asker.forgotten); diff != "" {
			t.Errorf("forgotten (-want +got):\n%s", diff)
		}
	})
}

func TestHandleUpdateGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("panic is recovered", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, model.Digest{})
		agg.panics = true

		b.handleUpdate(ctx, commandUpdate(100, "/jobs"))

		agg.panics = false
		b.handleUpdate(ctx, commandUpdate(100, "/help"))
		requireContains(t, api.lastText(), "/jobs")
	})

	t.Run("access denied", func(t *testing.T) {
		b, api, agg, _ := newTestBot(t, sampleDigest())
		b.cfg.AllowedUsers = []int64{1}

		b.handleUpdate(ctx, commandUpdate(100, "/jobs"))
		if diff := cmp.Diff("Access denied.", api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
		if len(agg.opts) != 0 {
			t.Error("aggregation should not run for a denied user")
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.handleUpdate(ctx, commandUpdate(100, "/frobnicate"))
		requireContains(t, api.lastText(), "Unknown command")
	})

	t.Run("updates without message are ignored", func(t *testing.T) {
		b, api, _, _ := newTestBot(t, model.Digest{})
		b.handleUpdate(ctx, tgbotapi.Update{UpdateID: 7})
		if diff := cmp.Diff(0, api.count()); diff != "" {
			t.Errorf("sent (-want +got):\n%s", diff)
		}
	})
}

func TestDeliver(t *testing.T) {
	b, api, _, _ := newTestBot(t, model.Digest{})
	api.failFor = map[int64]bool{13: true}

	msg := digest.Message{Text: "<b>Daily</b>"}
	if err := b.Deliver(context.Background(), 12, msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	want := sentMsg{ChatID: 12, Text: "<b>Daily</b>", ParseMode: tgbotapi.ModeHTML}
	if diff := cmp.Diff(want, api.last()); diff != "" {
		t.Errorf("sent (-want +got):\n%s", diff)
	}

	if err := b.Deliver(context.Background(), 13, msg); err == nil {
		t.Error("expected delivery error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b, api, _, _ := newTestBot(t, model.Digest{})
	api.updates = make(chan tgbotapi.Update)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	api.updates <- commandUpdate(100, "/help")
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
