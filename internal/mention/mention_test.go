package mention

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	names []string
	calls int
	err   error
}

func (f *fakeUsers) FindUsernames(_ context.Context, names []string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, n := range names {
		for _, known := range f.names {
			if n == known {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func TestResolve(t *testing.T) {
	users := &fakeUsers{names: []string{"alice", "ゆうき", "bob_2"}}
	r := NewResolver(users)

	tests := []struct {
		name      string
		text      string
		decorated string
		mentions  []string
	}{
		{
			name:      "known and unknown",
			text:      "hi @alice and @nobody",
			decorated: `hi <span class="mention">@alice</span> and @nobody`,
			mentions:  []string{"alice"},
		},
		{
			name:      "unicode and underscore",
			text:      "@ゆうき @bob_2!",
			decorated: `<span class="mention">@ゆうき</span> <span class="mention">@bob_2</span>!`,
			mentions:  []string{"ゆうき", "bob_2"},
		},
		{
			name:      "escapes html",
			text:      "<b>@alice</b> & co",
			decorated: `&lt;b&gt;<span class="mention">@alice</span>&lt;/b&gt; &amp; co`,
			mentions:  []string{"alice"},
		},
		{
			name:      "repeated mention listed once",
			text:      "@alice @alice",
			decorated: `<span class="mention">@alice</span> <span class="mention">@alice</span>`,
			mentions:  []string{"alice"},
		},
		{
			name:      "no mentions",
			text:      "plain <text>",
			decorated: "plain &lt;text&gt;",
			mentions:  []string{},
		},
		{
			name:      "bare at sign",
			text:      "mail me @ home",
			decorated: "mail me @ home",
			mentions:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.decorated, res.Decorated)
			assert.Equal(t, tt.mentions, res.Mentions)
		})
	}
}

func TestResolveSkipsLookupWithoutCandidates(t *testing.T) {
	users := &fakeUsers{}
	_, err := NewResolver(users).Resolve(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Zero(t, users.calls)
}

func TestResolveLookupError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewResolver(&fakeUsers{err: boom}).Resolve(context.Background(), "@alice")
	assert.ErrorIs(t, err, boom)
}

func TestResolveManyUsesOneLookup(t *testing.T) {
	users := &fakeUsers{names: []string{"alice", "bob"}}
	res, err := NewResolver(users).ResolveMany(context.Background(), []string{"@alice", "@bob hi", "none"})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, 1, users.calls)
	assert.Equal(t, []string{"alice"}, res[0].Mentions)
	assert.Equal(t, []string{"bob"}, res[1].Mentions)
	assert.Equal(t, "none", res[2].Decorated)
}
