package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
)

func userTurn(i int) domain.Turn {
	return domain.Turn{Role: domain.RoleUser, Text: fmt.Sprintf("u%d", i)}
}

func replyTurn(i int) domain.Turn {
	return domain.Turn{Role: domain.RoleAssistant, Text: fmt.Sprintf("a%d", i)}
}

func TestHistory_Capacity(t *testing.T) {
	assert.Equal(t, 50, NewHistory(0).Cap())
	assert.Equal(t, 2, NewHistory(1).Cap())
	assert.Equal(t, 2, NewHistory(-3).Cap())
	assert.Equal(t, 7, NewHistory(7).Cap())
}

func TestHistory_BoundAndPairEviction(t *testing.T) {
	h := NewHistory(6)
	for i := 0; i < 10; i++ {
		h.AppendExchange(userTurn(i), replyTurn(i))
		require.LessOrEqual(t, h.Len(), h.Cap())

		turns := h.Turns()
		require.Equal(t, 0, len(turns)%2)
		for j := 0; j < len(turns); j += 2 {
			assert.Equal(t, domain.RoleUser, turns[j].Role)
			assert.Equal(t, domain.RoleAssistant, turns[j+1].Role)
			assert.Equal(t, "u"+turns[j+1].Text[1:], turns[j].Text, "pair split")
		}
	}
	turns := h.Turns()
	assert.Equal(t, "u7", turns[0].Text)
	assert.Equal(t, "a9", turns[5].Text)
}

func TestHistory_SingleAppendsOddCapacity(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			h.Append(userTurn(i / 2))
		} else {
			h.Append(replyTurn(i / 2))
		}
		require.LessOrEqual(t, h.Len(), 5)
	}
	turns := h.Turns()
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "a9", turns[len(turns)-1].Text)
}

func TestHistory_TurnsIsCopy(t *testing.T) {
	h := NewHistory(4)
	h.AppendExchange(userTurn(1), replyTurn(1))
	turns := h.Turns()
	turns[0].Text = "changed"
	assert.Equal(t, "u1", h.Turns()[0].Text)
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(4)
	h.AppendExchange(userTurn(1), replyTurn(1))
	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Turns())
}
