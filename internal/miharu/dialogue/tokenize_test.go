package dialogue

import (
	"reflect"
	"testing"
)

func TestSplitQuoted(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"web01 ping", []string{"web01", "ping"}},
		{"  web01   ping  ", []string{"web01", "ping"}},
		{`"My Service" web01`, []string{"My Service", "web01"}},
		{`'My Service' web01`, []string{"My Service", "web01"}},
		{`ntp"-"server`, []string{"ntp-server"}},
		{`"unclosed phrase`, []string{"unclosed phrase"}},
		{`""`, []string{""}},
		{"", nil},
		{"   ", nil},
		{"one\ttwo\nthree", []string{"one", "two", "three"}},
	}
	for _, tt := range tests {
		if got := splitQuoted(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitQuoted(%q) = %#v, want %#v", tt.input, got, tt.want)
		}
	}
}

func TestIndexOfFold(t *testing.T) {
	tokens := []string{"web01", "Until", "tomorrow"}

	if got := indexOfFold(tokens, "until"); got != 1 {
		t.Errorf("indexOfFold(until) = %d, want 1", got)
	}
	if got := indexOfFold(tokens, "from"); got != -1 {
		t.Errorf("indexOfFold(from) = %d, want -1", got)
	}
	if got := indexOfFold(nil, "until"); got != -1 {
		t.Errorf("indexOfFold on empty = %d, want -1", got)
	}
}
