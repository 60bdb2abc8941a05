package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
)

// Question はインポスター以外に出す質問と、インポスターにだけ出す質問の組
type Question struct {
	Text     string `json:"question"`
	Imposter string `json:"imposterQuestion"`
}

type QuestionBank struct {
	questions []Question
	variants  map[string]string
}

func NewQuestionBank(questions []Question) (*QuestionBank, error) {
	if len(questions) == 0 {
		return nil, errors.New("question bank is empty")
	}
	variants := make(map[string]string, len(questions))
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		switch {
		case q.Text == "" || q.Imposter == "":
			return nil, fmt.Errorf("question %d: question and imposter question are required", i)
		case q.Text == q.Imposter:
			return nil, fmt.Errorf("question %d: imposter question must differ from the question", i)
		case variants[q.Text] != "":
			return nil, fmt.Errorf("question %d: duplicate question %q", i, q.Text)
		case seen[q.Imposter]:
			return nil, fmt.Errorf("question %d: duplicate imposter question %q", i, q.Imposter)
		}
		variants[q.Text] = q.Imposter
		seen[q.Imposter] = true
	}
	return &QuestionBank{
		questions: append([]Question{}, questions...),
		variants:  variants,
	}, nil
}

func DefaultQuestionBank() *QuestionBank {
	bank, err := NewQuestionBank(defaultQuestions)
	if err != nil {
		panic(err)
	}
	return bank
}

// LoadQuestionBank はJSONファイル [{"question": "...", "imposterQuestion": "..."}] を読み込む
func LoadQuestionBank(path string) (*QuestionBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewQuestionBank(questions)
}

func (b *QuestionBank) Pick(r *rand.Rand) Question {
	return b.questions[r.Intn(len(b.questions))]
}

func (b *QuestionBank) ImposterVariant(text string) (string, bool) {
	v, ok := b.variants[text]
	return v, ok
}

func (b *QuestionBank) Len() int {
	return len(b.questions)
}

var defaultQuestions = []Question{
	{"What is your favorite food?", "What food do you dislike the most?"},
	{"What is your favorite sport?", "What sport do you find boring?"},
	{"Where do you want to travel next?", "Where would you never want to visit?"},
	{"What is your favorite movie genre?", "What movie genre do you hate?"},
	{"What is your favorite season?", "What season do you dislike?"},
	{"What is your dream job?", "What job would you never want to do?"},
	{"What is your favorite hobby?", "What hobby seems pointless to you?"},
	{"What is your favorite color?", "What color do you find ugly?"},
}
