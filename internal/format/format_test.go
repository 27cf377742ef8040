package format

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     Mode
	}{
		{
			name:     "table keyword in running chinese",
			question: "請用表格說明空污來源",
			want:     ModeCustom,
		},
		{
			name:     "plain question",
			question: "小港空污USR計畫的成效如何？",
			want:     ModeDefault,
		},
		{
			name:     "summary keyword",
			question: "幫我摘要這份計畫的重點",
			want:     ModeCustom,
		},
		{
			name:     "english keyword as whole word",
			question: "please summarize the pollution sources",
			want:     ModeCustom,
		},
		{
			name:     "english keyword case insensitive",
			question: "Present the findings AS A TABLE please",
			want:     ModeCustom,
		},
		{
			name:     "verb plus format instruction",
			question: "請依照之前的樣式輸出，我要的是那種格式",
			want:     ModeCustom,
		},
		{
			name:     "question answers scaffold with instructive marker",
			question: "給我2組QA：\nQuestion: [問題]\nAnswers: [答案]",
			want:     ModeCustom,
		},
		{
			name:     "question answers scaffold without marker",
			question: "Question: what is PM2.5?\nAnswers: fine particulate matter",
			want:     ModeDefault,
		},
		{
			name:     "singular answer label",
			question: "請用以下樣板給我內容\nQuestion: x\nAnswer: y",
			want:     ModeCustom,
		},
		{
			name:     "brief explanation phrase",
			question: "USR計畫是什麼，簡單說明",
			want:     ModeCustom,
		},
		{
			name:     "one sentence keyword",
			question: "一句話告訴我結論",
			want:     ModeCustom,
		},
		{
			name:     "empty question",
			question: "",
			want:     ModeDefault,
		},
		{
			name:     "unrelated english",
			question: "How effective is the harbor air quality program?",
			want:     ModeDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.question); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}
