package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"lingochat/internal/ai"
	"lingochat/internal/common"
	"lingochat/internal/settings"
)

// Fixed assistant turns for configuration problems. The conversation keeps a
// coherent transcript instead of failing the request.
const (
	MsgAPIKeyMissing = "OpenAI API 키가 설정되지 않았습니다. 설정에서 API 키를 입력해주세요."
	MsgNoLocalModel  = "모델이 설정되지 않았습니다. 설정에서 사용할 모델을 선택해주세요."

	msgLocalTimeout = "응답 생성 중입니다. 로컬 모델이 처리하는데 시간이 오래 걸릴 수 있습니다. 잠시만 기다려주세요."
	msgLocalRefused = "Ollama 서버에 연결할 수 없습니다. Ollama가 실행 중인지 확인해주세요."
	msgLocalGeneric = "로컬 모델에서 오류가 발생했습니다. Ollama가 실행 중이고 모델이 설치되어 있는지 확인해주세요."
	msgCloudFailed  = "OpenAI API 호출 중 오류가 발생했습니다. API 키가 올바른지 확인 후 다시 시도해주세요."
)

const titleMaxRunes = 50

type Service struct {
	repo       *Repo
	registry   *ai.Registry
	settings   *settings.Store
	maxHistory int
	log        *zap.Logger
}

func NewService(repo *Repo, registry *ai.Registry, st *settings.Store, maxHistory int, log *zap.Logger) *Service {
	if maxHistory <= 0 || maxHistory > 100 {
		maxHistory = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, registry: registry, settings: st, maxHistory: maxHistory, log: log}
}

// Repo exposes the persistence layer for read-only endpoints.
func (s *Service) Repo() *Repo {
	return s.repo
}

type SendInput struct {
	Message    string
	ChatRoomID string
	History    []ai.Message
	Language   *ai.LanguagePair
}

// Stream is a live local-backend response. Chunks delivers content fragments;
// Done closes after the assistant message is persisted; at most one terminal
// user-facing error arrives on Errs.
type Stream struct {
	Chunks <-chan string
	Errs   <-chan string
	Done   <-chan struct{}
}

// Turn is the outcome of one chat exchange: either a complete assistant text
// or a stream the caller must drain.
type Turn struct {
	Room   *ChatRoom
	Text   string
	Stream *Stream
}

// Send runs one conversation turn: resolve the room and language pair, persist
// the user message, dispatch to the configured backend and return either the
// full reply or a stream.
func (s *Service) Send(ctx context.Context, userID uint64, in SendInput) (*Turn, error) {
	room, existed, err := s.resolveRoom(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	pair := s.resolveLanguages(ctx, room, existed, in.Language)
	systemPrompt := ai.TutorSystemPrompt(&pair)

	if err := s.repo.InsertMessage(ctx, &Message{
		ChatRoomID: room.ID,
		Role:       RoleUser,
		Content:    in.Message,
	}); err != nil {
		return nil, err
	}

	providerMsgs := s.buildMessages(systemPrompt, in.History, in.Message)
	st := s.settings.Load()

	switch {
	case st.ModelType == settings.ModelTypeLocal && st.ModelID == "":
		return s.cannedTurn(ctx, room, MsgNoLocalModel)
	case st.ModelType == settings.ModelTypeOpenAI && st.OpenAIAPIKey == "":
		return s.cannedTurn(ctx, room, MsgAPIKeyMissing)
	case st.ModelType == settings.ModelTypeLocal:
		return s.streamTurn(ctx, room, st, providerMsgs)
	default:
		return s.cloudTurn(ctx, room, st, providerMsgs)
	}
}

// resolveRoom loads the caller's room by id, or lazily creates one titled from
// the first words of the message. An id that does not resolve for this user
// also ends in a fresh room.
func (s *Service) resolveRoom(ctx context.Context, userID uint64, in SendInput) (*ChatRoom, bool, error) {
	if in.ChatRoomID != "" {
		room, err := s.repo.GetRoom(ctx, in.ChatRoomID, userID)
		if err == nil {
			return room, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}

	room := &ChatRoom{
		ID:     id,
		UserID: userID,
		Title:  truncateTitle(in.Message),
	}
	if in.Language != nil && !in.Language.Empty() {
		room.MainLanguage = in.Language.MainLanguage
		room.LearningLanguage = in.Language.LearningLanguage
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, false, err
	}
	return room, false, nil
}

// resolveLanguages picks the effective pair for this turn. A differing
// caller-supplied pair overwrites the room's; the update is best-effort and a
// failure keeps the stale pair.
func (s *Service) resolveLanguages(ctx context.Context, room *ChatRoom, existed bool, requested *ai.LanguagePair) ai.LanguagePair {
	roomPair := ai.LanguagePair{MainLanguage: room.MainLanguage, LearningLanguage: room.LearningLanguage}

	if existed && requested != nil && !requested.Empty() && *requested != roomPair {
		if err := s.repo.UpdateRoomLanguages(ctx, room.ID, requested.MainLanguage, requested.LearningLanguage); err != nil {
			s.log.Warn("language pair update failed, keeping previous",
				zap.String("room_id", room.ID), zap.Error(err))
			if !roomPair.Empty() {
				return roomPair
			}
		} else {
			room.MainLanguage = requested.MainLanguage
			room.LearningLanguage = requested.LearningLanguage
		}
		return *requested
	}

	if !roomPair.Empty() {
		return roomPair
	}
	if requested != nil && !requested.Empty() {
		return *requested
	}
	return ai.LanguagePair{MainLanguage: ai.DefaultMainLanguage, LearningLanguage: ai.DefaultLearningLanguage}
}

func (s *Service) buildMessages(systemPrompt string, history []ai.Message, userMsg string) []ai.Message {
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: "system", Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: RoleUser, Content: userMsg})
	return msgs
}

// cannedTurn persists a fixed instructional string as the assistant reply.
func (s *Service) cannedTurn(ctx context.Context, room *ChatRoom, text string) (*Turn, error) {
	if err := s.persistAssistant(ctx, room.ID, text); err != nil {
		return nil, err
	}
	return &Turn{Room: room, Text: text}, nil
}

// cloudTurn performs a single blocking completion. Backend failures become an
// apologetic assistant message rather than an error.
func (s *Service) cloudTurn(ctx context.Context, room *ChatRoom, st settings.ModelSettings, msgs []ai.Message) (*Turn, error) {
	provider, err := s.registry.Get(ctx, settings.ModelTypeOpenAI, st)
	if err != nil {
		return nil, err
	}

	reply, err := provider.Chat(ctx, msgs)
	if err != nil {
		s.log.Error("cloud completion failed", zap.String("room_id", room.ID), zap.Error(err))
		reply = msgCloudFailed
	}
	if err := s.persistAssistant(ctx, room.ID, reply); err != nil {
		return nil, err
	}
	return &Turn{Room: room, Text: reply}, nil
}

// streamTurn relays the local backend's stream. The assistant message is
// persisted only after the stream completes; a mid-stream failure surfaces as
// a terminal error and nothing partial is stored as model output.
func (s *Service) streamTurn(ctx context.Context, room *ChatRoom, st settings.ModelSettings, msgs []ai.Message) (*Turn, error) {
	provider, err := s.registry.Get(ctx, settings.ModelTypeLocal, st)
	if err != nil {
		return nil, err
	}
	sp, ok := provider.(ai.StreamProvider)
	if !ok {
		return nil, errors.New("local provider does not support streaming")
	}

	outChunks := make(chan string, 16)
	outErrs := make(chan string, 1)
	outDone := make(chan struct{})

	go func() {
		// LIFO: chunks close first, Done last, so a draining caller sees any
		// terminal error before completion.
		defer close(outDone)
		defer close(outErrs)
		defer close(outChunks)

		pChunks, pErrs := sp.StreamChat(ctx, msgs)

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			select {
			case outChunks <- c:
			case <-ctx.Done():
				return
			}
		}

		select {
		case err := <-pErrs:
			if err != nil {
				s.log.Error("local stream failed", zap.String("room_id", room.ID), zap.Error(err))
				outErrs <- ClassifyLocalError(err)
				return
			}
		default:
		}

		if err := s.persistAssistant(ctx, room.ID, b.String()); err != nil {
			s.log.Error("assistant message persist failed", zap.String("room_id", room.ID), zap.Error(err))
			outErrs <- msgLocalGeneric
			return
		}
	}()

	return &Turn{
		Room:   room,
		Stream: &Stream{Chunks: outChunks, Errs: outErrs, Done: outDone},
	}, nil
}

func (s *Service) persistAssistant(ctx context.Context, roomID, content string) error {
	return s.repo.InsertMessage(ctx, &Message{
		ChatRoomID: roomID,
		Role:       RoleAssistant,
		Content:    content,
	})
}

// ClassifyLocalError maps a transport failure to one of the user-facing
// explanations shown in the chat transcript.
func ClassifyLocalError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return msgLocalTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return msgLocalRefused
	default:
		return msgLocalGeneric
	}
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleMaxRunes {
		return message
	}
	return string(runes[:titleMaxRunes]) + "..."
}
