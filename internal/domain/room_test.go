package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDirectRoomIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"uid-9", "uid-10"},
		{"Zed", "adam"},
	}
	for _, p := range pairs {
		ab := DirectRoomID(p[0], p[1])
		ba := DirectRoomID(p[1], p[0])
		assert.Equal(t, ab, ba)
		assert.True(t, IsDirectRoomID(ab))
	}
	assert.Equal(t, "dm__alice__bob", DirectRoomID("bob", "alice"))
}

func TestGroupRoomIDsAreOpaqueAndDistinct(t *testing.T) {
	a, b := NewGroupRoomID(), NewGroupRoomID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, GroupRoomPrefix))
	assert.False(t, IsDirectRoomID(a))
}

func TestPlaceholderUsernames(t *testing.T) {
	assert.Equal(t, "user_abcdefgh", PlaceholderUsername("abcdefghijkl"))
	assert.Equal(t, "user_abc", PlaceholderUsername("abc"))
	assert.Equal(t, []string{"user_abcdefgh", "user_abcdefghijkl"}, PlaceholderUsernames("abcdefghijkl"))
	assert.Equal(t, []string{"user_abc"}, PlaceholderUsernames("abc"))
}

func TestPlaceholderUsernameCutsWholeCharacters(t *testing.T) {
	for _, id := range []string{"aжжжжжжжжж", "日本語のユーザーID", "😀😀😀😀😀😀😀😀😀"} {
		name := PlaceholderUsername(id)
		assert.True(t, utf8.ValidString(name), name)
		assert.Equal(t, placeholderPrefixLen, utf8.RuneCountInString(strings.TrimPrefix(name, "user_")), name)
	}
	assert.Equal(t, "user_aжжжжжжж", PlaceholderUsername("aжжжжжжжжж"))
}

func TestUserName(t *testing.T) {
	display := "Alice"
	empty := ""
	assert.Equal(t, "Alice", (&User{Username: "user_a", DisplayName: &display}).Name())
	assert.Equal(t, "user_a", (&User{Username: "user_a", DisplayName: &empty}).Name())
	assert.Equal(t, "user_a", (&User{Username: "user_a"}).Name())
}
