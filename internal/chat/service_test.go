package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"lingochat/internal/ai"
	"lingochat/internal/settings"
)

type recordingProvider struct {
	last  []ai.Message
	reply string
	err   error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

type streamingProvider struct {
	chunks []string
	err    error
}

func (p *streamingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return strings.Join(p.chunks, ""), p.err
}

func (p *streamingProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	chunks := make(chan string, len(p.chunks))
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(chunks)
		for _, c := range p.chunks {
			chunks <- c
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return chunks, errs
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ChatRoom{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testSettings(t *testing.T, modelType, modelID, apiKey string) *settings.Store {
	t.Helper()
	st := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	if _, err := st.Save(modelType, modelID, apiKey); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	return st
}

func registryWith(name string, p ai.Provider) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register(name, func(ctx context.Context, s settings.ModelSettings) (ai.Provider, error) {
		_ = ctx
		_ = s
		return p, nil
	})
	return reg
}

func TestSend_CloudWritesUserAndAssistant(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	prov := &recordingProvider{reply: "Hello back"}

	svc := NewService(repo, registryWith(settings.ModelTypeOpenAI, prov),
		testSettings(t, settings.ModelTypeOpenAI, "", "sk-test"), 20, nil)

	turn, err := svc.Send(context.Background(), 1, SendInput{Message: "Hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Text != "Hello back" {
		t.Fatalf("unexpected reply: %q", turn.Text)
	}
	if turn.Room == nil || turn.Room.ID == "" {
		t.Fatalf("expected a room to be created")
	}

	var msgs []Message
	if err := db.Where("chat_room_id = ?", turn.Room.ID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "Hello back" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", msgs[1].Role, msgs[1].Content)
	}

	// system prompt first, user message last
	if prov.last[0].Role != "system" {
		t.Fatalf("expected system prompt first, got %q", prov.last[0].Role)
	}
	if got := prov.last[len(prov.last)-1]; got.Role != RoleUser || got.Content != "Hello" {
		t.Fatalf("unexpected final provider msg: %+v", got)
	}
}

func TestSend_MissingAPIKeyBecomesAssistantGuidance(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	svc := NewService(repo, ai.NewRegistry(),
		testSettings(t, settings.ModelTypeOpenAI, "", ""), 20, nil)

	turn, err := svc.Send(context.Background(), 1, SendInput{Message: "Hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Text != MsgAPIKeyMissing {
		t.Fatalf("unexpected reply: %q", turn.Text)
	}

	var msgs []Message
	if err := db.Where("chat_room_id = ?", turn.Room.ID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != MsgAPIKeyMissing {
		t.Fatalf("expected guidance persisted as assistant turn, got %+v", msgs)
	}
}

func TestSend_MissingLocalModelBecomesAssistantGuidance(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	// "local" with empty model id cannot be saved through the store, so write
	// the condition via Save("local", "") which keeps ModelID empty.
	svc := NewService(repo, ai.NewRegistry(),
		testSettings(t, settings.ModelTypeLocal, "", ""), 20, nil)

	turn, err := svc.Send(context.Background(), 1, SendInput{Message: "Hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Text != MsgNoLocalModel {
		t.Fatalf("unexpected reply: %q", turn.Text)
	}
}

func TestSend_StreamRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	prov := &streamingProvider{chunks: []string{"안녕", "하세요", "!"}}

	svc := NewService(repo, registryWith(settings.ModelTypeLocal, prov),
		testSettings(t, settings.ModelTypeLocal, "qwen2.5:0.5b", ""), 20, nil)

	turn, err := svc.Send(context.Background(), 7, SendInput{Message: "인사해줘"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.Stream == nil {
		t.Fatalf("expected a stream")
	}

	var full strings.Builder
	for c := range turn.Stream.Chunks {
		full.WriteString(c)
	}
	if msg, ok := <-turn.Stream.Errs; ok && msg != "" {
		t.Fatalf("unexpected stream error: %q", msg)
	}
	<-turn.Stream.Done

	if full.String() != "안녕하세요!" {
		t.Fatalf("unexpected streamed text: %q", full.String())
	}

	var msgs []Message
	if err := db.Where("chat_room_id = ?", turn.Room.ID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected exactly one user and one assistant message, got %d", len(msgs))
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "안녕하세요!" {
		t.Fatalf("unexpected assistant msg: %+v", msgs[1])
	}
}

func TestSend_StreamFailureNotPersisted(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	prov := &streamingProvider{chunks: []string{"partial"}, err: errors.New("connection refused")}

	svc := NewService(repo, registryWith(settings.ModelTypeLocal, prov),
		testSettings(t, settings.ModelTypeLocal, "qwen2.5:0.5b", ""), 20, nil)

	turn, err := svc.Send(context.Background(), 7, SendInput{Message: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	for range turn.Stream.Chunks {
	}
	msg, ok := <-turn.Stream.Errs
	if !ok || msg == "" {
		t.Fatalf("expected a terminal error")
	}
	<-turn.Stream.Done

	var msgs []Message
	if err := db.Where("chat_room_id = ?", turn.Room.ID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("partial stream output must not be stored, got %+v", msgs)
	}
}

func TestSend_ForeignRoomIDCreatesNewRoom(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	prov := &recordingProvider{reply: "ok"}

	svc := NewService(repo, registryWith(settings.ModelTypeOpenAI, prov),
		testSettings(t, settings.ModelTypeOpenAI, "", "sk-test"), 20, nil)

	// user 1 owns a room
	first, err := svc.Send(context.Background(), 1, SendInput{Message: "mine"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// user 2 sends with user 1's room id and silently gets a fresh room
	second, err := svc.Send(context.Background(), 2, SendInput{Message: "yours?", ChatRoomID: first.Room.ID})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if second.Room.ID == first.Room.ID {
		t.Fatalf("expected a new room for the other user")
	}
	if second.Room.UserID != 2 {
		t.Fatalf("new room owned by %d, want 2", second.Room.UserID)
	}
}

func TestTruncateTitle(t *testing.T) {
	short := "hello"
	if got := truncateTitle(short); got != short {
		t.Fatalf("short titles must pass through, got %q", got)
	}

	long := strings.Repeat("한", 60)
	got := truncateTitle(long)
	if want := strings.Repeat("한", 50) + "..."; got != want {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestClassifyLocalError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, msgLocalTimeout},
		{errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), msgLocalRefused},
		{errors.New("no such host"), msgLocalRefused},
		{errors.New("boom"), msgLocalGeneric},
	}
	for _, tc := range cases {
		if got := ClassifyLocalError(tc.err); got != tc.want {
			t.Fatalf("ClassifyLocalError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestListRooms_LastMessageAndOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	a := &ChatRoom{ID: "01AAAAAAAAAAAAAAAAAAAAAAAA", UserID: 1, Title: "a"}
	b := &ChatRoom{ID: "01BBBBBBBBBBBBBBBBBBBBBBBB", UserID: 1, Title: "b"}
	for _, r := range []*ChatRoom{a, b} {
		if err := repo.CreateRoom(ctx, r); err != nil {
			t.Fatalf("create room: %v", err)
		}
	}
	if err := repo.InsertMessage(ctx, &Message{ChatRoomID: a.ID, Role: RoleUser, Content: "first"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.InsertMessage(ctx, &Message{ChatRoomID: a.ID, Role: RoleAssistant, Content: "latest"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rooms, err := repo.ListRooms(ctx, 1)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	// a was touched by its messages, so it sorts first
	if rooms[0].ID != a.ID {
		t.Fatalf("expected most recently active room first, got %q", rooms[0].ID)
	}
	if rooms[0].LastMessage == nil || *rooms[0].LastMessage != "latest" {
		t.Fatalf("unexpected last message: %v", rooms[0].LastMessage)
	}
	if rooms[1].LastMessage != nil {
		t.Fatalf("empty room must have nil last message")
	}
}
