package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPoll() *Poll {
	return &Poll{
		ID:       "p1",
		Question: "Tabs or spaces?",
		Options: []Option{
			{ID: "o1", Text: "Tabs"},
			{ID: "o2", Text: "Spaces"},
			{ID: "o3", Text: "Both"},
		},
		IsActive: true,
	}
}

func TestPoll_HasOption(t *testing.T) {
	poll := testPoll()

	assert.True(t, poll.HasOption("o2"))
	assert.False(t, poll.HasOption("o4"))
	assert.False(t, poll.HasOption(""))
}

func TestPoll_Tally(t *testing.T) {
	poll := testPoll()

	results := poll.Tally([]OptionCount{
		{OptionID: "o3", Count: 2},
		{OptionID: "o1", Count: 5},
		{OptionID: "stale", Count: 9},
	})

	assert.Equal(t, []OptionCount{
		{OptionID: "o1", Count: 5},
		{OptionID: "o2", Count: 0},
		{OptionID: "o3", Count: 2},
	}, results)
}

func TestPoll_TallyWithoutVotes(t *testing.T) {
	results := testPoll().Tally(nil)

	assert.Len(t, results, 3)
	for _, r := range results {
		assert.Zero(t, r.Count)
	}
}
