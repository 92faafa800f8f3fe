package domain

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistory_Evicts_Oldest_First(t *testing.T) {
	req := require.New(t)
	history := NewHistory(3)

	for i := 0; i < 5; i++ {
		history.Append(Message{Text: strconv.Itoa(i)})
	}

	all := history.All()
	req.Len(all, 3)
	req.Equal("2", all[0].Text)
	req.Equal("4", all[2].Text)
}

func TestHistory_Clear(t *testing.T) {
	req := require.New(t)
	history := NewHistory(10)
	history.Append(Message{Text: "hello"})

	history.Clear()

	req.Equal(0, history.Len())
	req.Empty(history.All())
}
