package sdq

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOption(t *testing.T) {
	cases := map[string]Option{
		"Not True":       NotTrue,
		"not_true":       NotTrue,
		" SOMEWHAT TRUE": SomewhatTrue,
		"somewhattrue":   SomewhatTrue,
		"Certainly-True": CertainlyTrue,
		"2":              CertainlyTrue,
		"0":              NotTrue,
		" 1 ":            SomewhatTrue,
	}
	for in, want := range cases {
		got, err := ParseOption(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	for _, bad := range []string{"", "maybe", "3", "-1", "-2", "--0", "1-", "+-1", "_2"} {
		_, err := ParseOption(bad)
		assert.ErrorIs(t, err, ErrInvalidOption, "input %q", bad)
	}
}

func TestOptionJSONUsesLabels(t *testing.T) {
	raw, err := json.Marshal(map[string]Option{"option": SomewhatTrue})
	require.NoError(t, err)
	assert.JSONEq(t, `{"option":"Somewhat True"}`, string(raw))

	var decoded struct {
		Option Option `json:"option"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"option":"Certainly True"}`), &decoded))
	assert.Equal(t, CertainlyTrue, decoded.Option)

	_, err = json.Marshal(Option(9))
	assert.Error(t, err)
}

func TestDetectDirectAnswer(t *testing.T) {
	cases := []struct {
		in   string
		want Option
		ok   bool
	}{
		{"Not true at all", NotTrue, true},
		{"I'd say certainly true", CertainlyTrue, true},
		{"somewhat true I guess", SomewhatTrue, true},
		{"SomewhatTrue", SomewhatTrue, true},
		{"she does it every day", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := DetectDirectAnswer(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestPhrase(t *testing.T) {
	cases := []struct {
		text string
		name string
		self bool
		want string
	}{
		{"Often loses temper", "Sam", false, "How often does Sam lose temper?"},
		{"Often loses temper", "Sam", true, "How often do you lose temper?"},
		{"Often unhappy, depressed or tearful", "Sam", false, "How often is Sam unhappy, depressed or tearful?"},
		{"Has at least one good friend", "Sam", false, "Does Sam have at least one good friend?"},
		{"Considerate of other people's feelings", "Sam", false, "Is Sam considerate of other people's feelings?"},
		{"Considerate of other people's feelings", "Sam", true, "How often are you considerate of other people's feelings?"},
		{"Can stop and think things out before acting", "Sam", false, "Can Sam stop and think things out before acting?"},
		{"Kind to younger children", "", false, "Is the child kind to younger children?"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Phrase(tc.text, tc.name, tc.self))
	}

	q := Question{Text: "Many fears, easily scared"}
	assert.Contains(t, Prompt(q, "Sam", false), OptionsPrompt)
}
