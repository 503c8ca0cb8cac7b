package markup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const mcqProblem = `<problem>
  <p>Which planet is largest?</p>
  <multiplechoiceresponse>
    <choicegroup type="MultipleChoice">
      <choice correct="true">Jupiter</choice>
      <choice correct="false">Mars</choice>
    </choicegroup>
  </multiplechoiceresponse>
  <solution><p>Jupiter is the largest.</p></solution>
</problem>`

func TestProblemTypes(t *testing.T) {
	got := ProblemTypes(mcqProblem + `<optionresponse/><multiplechoiceresponse></multiplechoiceresponse>`)
	want := []string{"multiplechoiceresponse", "optionresponse"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ProblemTypes (-want +got):\n%s", diff)
	}
	if got := ProblemTypes("<p>no problems here</p>"); got != nil {
		t.Fatalf("ProblemTypes plain html: want=nil got=%v", got)
	}
}

func TestMatchesCapaType(t *testing.T) {
	types := []string{"multiplechoiceresponse"}
	for capa, want := range map[string]bool{
		"multiplechoice":         true,
		"multiplechoiceresponse": true,
		"optionresponse":         false,
		"":                       false,
	} {
		if got := MatchesCapaType(types, capa); got != want {
			t.Fatalf("MatchesCapaType(%q): want=%v got=%v", capa, want, got)
		}
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText(mcqProblem, 0)
	want := "Which planet is largest? Jupiter Mars"
	if got != want {
		t.Fatalf("PlainText: want=%q got=%q", want, got)
	}
	if got := PlainText("<p>Hello <b>world</b></p><script>x()</script>", 8); got != "Hello wo" {
		t.Fatalf("PlainText truncated: want=%q got=%q", "Hello wo", got)
	}
}
