// Package recommend ranks local models for a learner's language pair from a
// static per-language performance table.
package recommend

import "sort"

type langScore struct {
	Score      int
	Speciality string
}

type modelPerformance struct {
	Model       string
	DisplayName string
	SizeGB      float64
	Size        string
	Description string
	Languages   map[string]langScore
}

var Languages = map[string]string{
	"ko": "한국어",
	"ja": "일본어",
	"en": "영어",
	"zh": "중국어",
	"es": "스페인어",
	"fr": "프랑스어",
	"de": "독일어",
}

var performanceTable = []modelPerformance{
	{
		Model: "llama3.1:70b", DisplayName: "Llama 3.1 70B", Size: "40GB", SizeGB: 40,
		Description: "가장 강력한 다국어 모델",
		Languages: map[string]langScore{
			"ko": {9, "자연스러운 한국어"}, "ja": {9, "정확한 일본어 문법"}, "en": {10, ""},
			"zh": {8, ""}, "es": {8, ""}, "fr": {8, ""}, "de": {7, ""},
		},
	},
	{
		Model: "llama3.1:8b", DisplayName: "Llama 3.1 8B", Size: "4.7GB", SizeGB: 4.7,
		Description: "빠르고 효율적인 다국어 모델",
		Languages: map[string]langScore{
			"ko": {8, "일상 대화"}, "ja": {8, "기본 회화"}, "en": {9, ""},
			"zh": {7, ""}, "es": {7, ""}, "fr": {7, ""}, "de": {6, ""},
		},
	},
	{
		Model: "gemma2:27b", DisplayName: "Gemma 2 27B", Size: "16GB", SizeGB: 16,
		Description: "Google의 균형잡힌 모델",
		Languages: map[string]langScore{
			"ko": {7, "문법 설명"}, "ja": {6, "기초 학습"}, "en": {9, ""},
			"zh": {6, ""}, "es": {7, ""}, "fr": {7, ""}, "de": {7, ""},
		},
	},
	{
		Model: "gemma2:9b", DisplayName: "Gemma 2 9B", Size: "5.4GB", SizeGB: 5.4,
		Description: "가벼운 Google 모델",
		Languages: map[string]langScore{
			"ko": {6, "단어 설명"}, "ja": {5, "기초 단어"}, "en": {8, ""},
			"zh": {5, ""}, "es": {6, ""}, "fr": {6, ""}, "de": {6, ""},
		},
	},
	{
		Model: "qwen2.5:72b", DisplayName: "Qwen 2.5 72B", Size: "41GB", SizeGB: 41,
		Description: "중국어 특화, 동아시아 언어 강함",
		Languages: map[string]langScore{
			"ko": {8, "한자 어원 설명"}, "ja": {9, "한자 및 문법"}, "en": {8, ""},
			"zh": {10, "중국어 완벽 지원"}, "es": {6, ""}, "fr": {6, ""}, "de": {5, ""},
		},
	},
	{
		Model: "qwen2.5:14b", DisplayName: "Qwen 2.5 14B", Size: "8.7GB", SizeGB: 8.7,
		Description: "동아시아 언어에 최적화",
		Languages: map[string]langScore{
			"ko": {7, "문법 패턴"}, "ja": {8, "일본어 문법"}, "en": {7, ""},
			"zh": {9, "중국어 회화"}, "es": {5, ""}, "fr": {5, ""}, "de": {4, ""},
		},
	},
	{
		Model: "mixtral:8x7b", DisplayName: "Mixtral 8x7B", Size: "26GB", SizeGB: 26,
		Description: "유럽 언어에 특화",
		Languages: map[string]langScore{
			"ko": {5, ""}, "ja": {4, ""}, "en": {9, ""}, "zh": {4, ""},
			"es": {9, "스페인어 완벽"}, "fr": {9, "프랑스어 완벽"}, "de": {8, "독일어 문법"},
		},
	},
}

type Recommendation struct {
	Model            string  `json:"model"`
	DisplayName      string  `json:"displayName"`
	Size             string  `json:"size"`
	SizeGB           float64 `json:"sizeInGB"`
	Description      string  `json:"description"`
	Score            float64 `json:"score"`
	NativeScore      int     `json:"nativeScore"`
	TargetScore      int     `json:"targetScore"`
	NativeSpeciality string  `json:"nativeSpeciality,omitempty"`
	TargetSpeciality string  `json:"targetSpeciality,omitempty"`
}

// ByScore ranks models covering both languages, best average score first.
func ByScore(native, target string) []Recommendation {
	out := make([]Recommendation, 0, len(performanceTable))
	for _, m := range performanceTable {
		ns, okN := m.Languages[native]
		ts, okT := m.Languages[target]
		if !okN || !okT {
			continue
		}
		out = append(out, Recommendation{
			Model:            m.Model,
			DisplayName:      m.DisplayName,
			Size:             m.Size,
			SizeGB:           m.SizeGB,
			Description:      m.Description,
			Score:            float64(ns.Score+ts.Score) / 2,
			NativeScore:      ns.Score,
			TargetScore:      ts.Score,
			NativeSpeciality: ns.Speciality,
			TargetSpeciality: ts.Speciality,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// BySize keeps capable models (score >= 6) and orders them smallest first.
func BySize(native, target string) []Recommendation {
	scored := ByScore(native, target)
	out := make([]Recommendation, 0, len(scored))
	for _, r := range scored {
		if r.Score >= 6 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SizeGB < out[j].SizeGB })
	return out
}
