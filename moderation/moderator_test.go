package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) *Moderator {
	t.Helper()
	moderator, err := NewModerator('*', words...)
	require.NoError(t, err)
	return moderator
}

func TestModerator_Censors_Forbidden_Word(t *testing.T) {
	moderator := newTestModerator(t, "banana")

	require.Equal(t, "I love ****** splits", moderator.Censor("I love banana splits"))
}

func TestModerator_Leaves_Clean_Text_Untouched(t *testing.T) {
	moderator := newTestModerator(t, "banana")

	input := "nothing to see here"
	require.Equal(t, input, moderator.Censor(input))
}

func TestModerator_Matches_Despite_Case_And_Leet_Speak(t *testing.T) {
	moderator := newTestModerator(t, "banana")

	require.Equal(t, "******", moderator.Censor("B4nAn4"))
	// The span covers the noise runes between the matched characters too
	require.Equal(t, "***********", moderator.Censor("b.a.n.a.n.a"))
}

func TestModerator_Uses_Embedded_Default_List(t *testing.T) {
	moderator := newTestModerator(t)

	require.Equal(t, "you *****", moderator.Censor("you idiot"))
}

func TestModerator_Censors_Multiple_Occurrences(t *testing.T) {
	moderator := newTestModerator(t, "banana")

	require.Equal(t, "****** and ******", moderator.Censor("banana and BANANA"))
}
