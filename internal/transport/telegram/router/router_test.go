package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "snoozebot/internal/transport"
	logx "snoozebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: -100, FromID: from, FromName: "alice", Text: text}}
}

func startRouter(t *testing.T, cmds []Command) (*fakeAdapter, chan kit.Update) {
	t.Helper()
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, []int64{1}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	r.SetCommands(ctx, cmds)

	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ad, updates
}

func TestRouterDispatchesAliases(t *testing.T) {
	t.Parallel()
	var (
		mu  sync.Mutex
		got []*Request
	)
	ad, updates := startRouter(t, []Command{{
		Name:    "mute",
		Aliases: []string{"selfmute", "snooze"},
		Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			got = append(got, req)
			mu.Unlock()
			return req.Reply(ctx, "ok")
		},
	}})

	updates <- msg(5, "/snooze 4 d")
	updates <- msg(5, "/MUTE@snoozebot")

	require.Eventually(t, func() bool { return len(ad.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	byArgs := map[int]*Request{}
	for _, r := range got {
		byArgs[len(r.Args)] = r
	}
	require.Contains(t, byArgs, 2)
	assert.Equal(t, []string{"4", "d"}, byArgs[2].Args)
	assert.Equal(t, "mute", byArgs[2].Command)
	assert.Equal(t, "alice", byArgs[2].FromName)
	assert.False(t, byArgs[2].Owner)
	assert.NotEmpty(t, byArgs[2].ReqID)
	assert.Contains(t, byArgs, 0)
}

func TestRouterOwnerOnly(t *testing.T) {
	t.Parallel()
	ran := make(chan int64, 2)
	ad, updates := startRouter(t, []Command{{
		Name:   "dump",
		Access: AccessOwnerOnly,
		Handle: func(_ context.Context, req *Request) error {
			ran <- req.FromID
			return nil
		},
	}})

	updates <- msg(5, "/dump")
	require.Eventually(t, func() bool { return len(ad.texts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "You don't have the permission to use this command", ad.texts()[0])

	updates <- msg(1, "/dump")
	select {
	case id := <-ran:
		assert.Equal(t, int64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("owner command did not run")
	}
}

func TestRouterUnknownAndHelp(t *testing.T) {
	t.Parallel()
	ad, updates := startRouter(t, []Command{{
		Name:        "mutestatus",
		Aliases:     []string{"status"},
		Description: "show your restriction",
		Usage:       "/mutestatus",
		Handle:      func(context.Context, *Request) error { return nil },
	}})

	updates <- msg(5, "hello")
	updates <- msg(5, "/nope")
	require.Eventually(t, func() bool { return len(ad.texts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "unknown command, try /help", ad.texts()[0])

	updates <- msg(5, "/help")
	require.Eventually(t, func() bool { return len(ad.texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	help := ad.texts()[1]
	assert.Contains(t, help, "/mutestatus - show your restriction [/status]")
	assert.Contains(t, help, "/help")
}

func TestRouterRecoversPanics(t *testing.T) {
	t.Parallel()
	ad, updates := startRouter(t, []Command{
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("boom") }},
		{Name: "ping", Handle: func(ctx context.Context, req *Request) error { return req.Reply(ctx, "pong") }},
	})
	updates <- msg(5, "/boom")
	updates <- msg(5, "/ping")
	require.Eventually(t, func() bool {
		for _, s := range ad.texts() {
			if s == "pong" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"/mute", []string{"/mute"}},
		{"  /mute  4   d  ", []string{"/mute", "4", "d"}},
		{`/unmute 42 "true"`, []string{"/unmute", "42", "true"}},
		{`/x 'a b' c\ d`, []string{"/x", "a b", "c d"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenizeCommandLine(tt.in), tt.in)
	}
}

func TestBuildMenuCommands(t *testing.T) {
	t.Parallel()
	menu := buildMenuCommands([]Command{
		{Name: "mute", Description: "mute yourself"},
		{Name: "dump", Access: AccessOwnerOnly},
		{Name: "mute"},
		{Name: "9lives"},
	})
	require.Len(t, menu, 2)
	assert.Equal(t, kit.BotCommand{Command: "mute", Description: "mute yourself"}, menu[0])
	assert.Equal(t, "[owner] dump", menu[1].Description)
	assert.Equal(t, "restart_unmute", sanitizeTelegramCommand("restart-Unmute"))
}
