package ai

import "fmt"

const (
	DefaultMainLanguage     = "한국어"
	DefaultLearningLanguage = "영어"
)

// LanguagePair is a learner's native language and the language being studied.
type LanguagePair struct {
	MainLanguage     string `json:"mainLanguage"`
	LearningLanguage string `json:"learningLanguage"`
}

func (p LanguagePair) Empty() bool {
	return p.MainLanguage == "" && p.LearningLanguage == ""
}

const genericTutorPrompt = "You are a helpful language learning assistant. " +
	"Help users practice languages by having conversations, correcting mistakes, " +
	"and providing explanations. Respond in a friendly and encouraging manner."

// TutorSystemPrompt builds the system prompt for a chat turn. Without a
// language pair the generic tutor prompt is used; with one, the model is told
// to answer in the learner's native language, correct mistakes gently, and
// steer off-topic questions back to the learning goal.
func TutorSystemPrompt(pair *LanguagePair) string {
	if pair == nil || pair.Empty() {
		return genericTutorPrompt
	}

	main := pair.MainLanguage
	if main == "" {
		main = DefaultMainLanguage
	}
	learning := pair.LearningLanguage
	if learning == "" {
		learning = DefaultLearningLanguage
	}

	return fmt.Sprintf(`당신은 %s 학습을 돕는 친절한 언어 튜터입니다.

학습자 정보:
- 주언어: %s
- 배우는 언어: %s

대화 규칙:
1. 설명은 %s로 해주세요.
2. 학습자가 %s로 문장을 작성하면 실수를 부드럽게 교정하고 이유를 설명해주세요.
3. 주제에서 벗어난 질문이 오면 가능한 %s 학습과 연결해서 답변해주세요.
4. 격려하는 말투를 유지해주세요.`,
		learning, main, learning, main, learning, learning)
}
