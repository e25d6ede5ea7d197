package story

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGhostwriter_Trigger(t *testing.T) {
	store := activeStore()
	_, err := store.AppendContribution(context.Background(), today, Contribution{Text: "Nessuno rispose.", AuthorID: "u1"})
	require.NoError(t, err)

	oracle := replyWith("  «Poi, lentamente, la luce si spense.»\n")
	g := NewGhostwriter(store, oracle, NewFilter(), DefaultPrompts())
	s, _ := store.GetStory(context.Background(), today)

	c, err := g.Trigger(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "Poi, lentamente, la luce si spense.", c.Text)
	assert.True(t, c.IsGhostwriter)
	assert.Equal(t, GhostwriterID, c.AuthorID)
	assert.Equal(t, GhostwriterName, c.AuthorName)
	assert.Contains(t, oracle.lastPrompt(), "La porta era aperta. Nessuno rispose.")

	list, _ := store.ListContributions(context.Background(), today)
	assert.Len(t, list, 2)
}

func TestGhostwriter_Trigger_NoAppend(t *testing.T) {
	tests := []struct {
		name   string
		oracle *scriptedOracle
	}{
		{"oracle error", failingOracle()},
		{"empty reply", replyWith("   ")},
		{"only quotes", replyWith(`""`)},
		{"link", replyWith("Leggi il resto su www.racconti.it")},
		{"too long", replyWith(strings.Repeat("parola ", MaxWords+5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := activeStore()
			g := NewGhostwriter(store, tt.oracle, NewFilter(), DefaultPrompts())
			s, _ := store.GetStory(context.Background(), today)

			c, err := g.Trigger(context.Background(), s)
			assert.Nil(t, c)
			assert.True(t, IsOracleError(err), "expected oracle error, got %v", err)

			list, _ := store.ListContributions(context.Background(), today)
			assert.Empty(t, list)
		})
	}
}

func TestGhostwriter_Trigger_InactiveStory(t *testing.T) {
	oracle := replyWith("Una frase.")
	g := NewGhostwriter(newMemStore(noon), oracle, NewFilter(), DefaultPrompts())

	_, err := g.Trigger(context.Background(), &Story{Date: today, Status: StatusClosed})
	assert.ErrorIs(t, err, ErrStoryNotActive)

	_, err = g.Trigger(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStoryNotActive)
	assert.Zero(t, oracle.calls())
}

func TestGhostwriter_Trigger_Unconfigured(t *testing.T) {
	store := activeStore()
	g := NewGhostwriter(store, nil, NewFilter(), DefaultPrompts())
	s, _ := store.GetStory(context.Background(), today)

	_, err := g.Trigger(context.Background(), s)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestCleanContinuation(t *testing.T) {
	tests := map[string]string{
		`"Ciao."`:            "Ciao.",
		"“Ciao.”":            "Ciao.",
		"  « Ciao. »  ":      "Ciao.",
		`"“nested”"`:         "nested",
		"L'alba arrivò.":     "L'alba arrivò.",
		"Disse \"no\" e uscì": "Disse \"no\" e uscì",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanContinuation(in), "input %q", in)
	}
}
