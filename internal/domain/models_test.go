package domain

import "testing"

func TestSpeedBonus(t *testing.T) {
	cases := []struct {
		name      string
		points    int
		elapsed   float64
		timeLimit int
		want      int
	}{
		{"instant answer gets full bonus", 10, 0, 30, 2},
		{"half time gets half bonus", 10, 15, 30, 1},
		{"at the limit gets nothing", 10, 30, 30, 0},
		{"past the limit clamps to zero", 10, 45, 30, 0},
		{"zero limit yields no bonus", 10, 0, 0, 0},
		{"small point value floors to zero", 4, 0, 30, 0},
		{"large pot scales", 100, 6, 30, 16},
	}
	for _, tc := range cases {
		if got := SpeedBonus(tc.points, tc.elapsed, tc.timeLimit); got != tc.want {
			t.Errorf("%s: SpeedBonus(%d, %v, %d) = %d, want %d",
				tc.name, tc.points, tc.elapsed, tc.timeLimit, got, tc.want)
		}
	}
}

func TestHasAnswered(t *testing.T) {
	p := PlayerState{AnswerHistory: []AnswerRecord{{QuestionIndex: 0}, {QuestionIndex: 2}}}
	if !p.HasAnswered(0) || !p.HasAnswered(2) {
		t.Fatal("expected recorded indexes reported as answered")
	}
	if p.HasAnswered(1) {
		t.Fatal("expected unrecorded index reported as unanswered")
	}
}
