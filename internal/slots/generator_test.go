package slots

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionbook/internal/model"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name          string
		window        model.TimeWindow
		wantSessions  []model.Session
		wantRemainder int
		wantUnused    [2]string
	}{
		{
			name:   "exact fit",
			window: model.TimeWindow{StartTime: "09:00", EndTime: "10:00", SessionDuration: 30},
			wantSessions: []model.Session{
				{StartTime: "09:00", EndTime: "09:30"},
				{StartTime: "09:30", EndTime: "10:00"},
			},
			wantUnused: [2]string{"10:00", "10:00"},
		},
		{
			name:   "trailing remainder",
			window: model.TimeWindow{StartTime: "09:00", EndTime: "10:15", SessionDuration: 30},
			wantSessions: []model.Session{
				{StartTime: "09:00", EndTime: "09:30"},
				{StartTime: "09:30", EndTime: "10:00"},
			},
			wantRemainder: 15,
			wantUnused:    [2]string{"10:00", "10:15"},
		},
		{
			name:   "default duration",
			window: model.TimeWindow{StartTime: "13:00", EndTime: "14:00"},
			wantSessions: []model.Session{
				{StartTime: "13:00", EndTime: "13:30"},
				{StartTime: "13:30", EndTime: "14:00"},
			},
			wantUnused: [2]string{"14:00", "14:00"},
		},
		{
			name:          "duration longer than window",
			window:        model.TimeWindow{StartTime: "09:00", EndTime: "09:20", SessionDuration: 30},
			wantSessions:  []model.Session{},
			wantRemainder: 20,
			wantUnused:    [2]string{"09:00", "09:20"},
		},
		{
			name:         "empty window",
			window:       model.TimeWindow{StartTime: "09:00", EndTime: "09:00", SessionDuration: 30},
			wantSessions: []model.Session{},
			wantUnused:   [2]string{"09:00", "09:00"},
		},
		{
			name:   "hour sessions late in the day",
			window: model.TimeWindow{StartTime: "21:00", EndTime: "23:59", SessionDuration: 60},
			wantSessions: []model.Session{
				{StartTime: "21:00", EndTime: "22:00"},
				{StartTime: "22:00", EndTime: "23:00"},
			},
			wantRemainder: 59,
			wantUnused:    [2]string{"23:00", "23:59"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Generate(tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSessions, res.Sessions)
			assert.Equal(t, len(tt.wantSessions), res.Count)
			assert.Equal(t, tt.wantRemainder, res.Remainder)
			assert.Equal(t, tt.wantRemainder > 0, res.HasRemainder())
			assert.Equal(t, tt.wantUnused[0], FormatClock(res.UnusedStart))
			assert.Equal(t, tt.wantUnused[1], FormatClock(res.UnusedEnd))
		})
	}
}

func TestGenerateProperties(t *testing.T) {
	starts := []string{"00:00", "08:10", "09:00", "12:45"}
	ends := []string{"12:45", "17:00", "23:59"}
	durations := []int{1, 7, 15, 25, 30, 45, 60, 90}

	for _, s := range starts {
		for _, e := range ends {
			for _, d := range durations {
				w := model.TimeWindow{StartTime: s, EndTime: e, SessionDuration: d}
				res, err := Generate(w)
				require.NoError(t, err)

				start, _ := ParseClock(s)
				end, _ := ParseClock(e)
				total := end - start
				require.Equal(t, total/d, res.Count, "%s-%s/%d", s, e, d)
				require.Equal(t, total-d*res.Count, res.Remainder)

				prevEnd := start
				for _, sess := range res.Sessions {
					r, err := ParseRange(sess.StartTime, sess.EndTime)
					require.NoError(t, err)
					assert.Equal(t, d, r.End-r.Start)
					assert.Equal(t, prevEnd, r.Start)
					assert.LessOrEqual(t, r.End, end)
					prevEnd = r.End
				}
			}
		}
	}
}

func TestGenerateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		window model.TimeWindow
	}{
		{"negative duration", model.TimeWindow{StartTime: "09:00", EndTime: "10:00", SessionDuration: -15}},
		{"malformed start", model.TimeWindow{StartTime: "9:00", EndTime: "10:00"}},
		{"malformed end", model.TimeWindow{StartTime: "09:00", EndTime: "10:0a"}},
		{"end before start", model.TimeWindow{StartTime: "10:00", EndTime: "09:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.window)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9:30", 0, true},
		{"09-30", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, FormatClock(got))
		})
	}
}

func TestMatchesSessionAndWithinWindow(t *testing.T) {
	windows := []model.TimeWindow{
		{StartTime: "09:00", EndTime: "10:15", SessionDuration: 30},
		{StartTime: "14:00", EndTime: "16:00", SessionDuration: 60},
	}

	ok, err := MatchesSession(windows, "09:30", "10:00")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesSession(windows, "15:00", "16:00")
	require.NoError(t, err)
	assert.True(t, ok)

	// Inside a window but off the session grid.
	ok, err = MatchesSession(windows, "09:15", "09:45")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = MatchesSession(windows, "10:00", "10:15")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = WithinWindow(windows, Range{Start: 9*60 + 15, End: 9*60 + 45})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = WithinWindow(windows, Range{Start: 10 * 60, End: 10*60 + 15})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = WithinWindow(windows, Range{Start: 10 * 60, End: 14*60 + 30})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountDay(t *testing.T) {
	n, err := CountDay([]model.TimeWindow{
		{StartTime: "09:00", EndTime: "10:00", SessionDuration: 30},
		{StartTime: "11:00", EndTime: "12:00", SessionDuration: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = CountDay(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
