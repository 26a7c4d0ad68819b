package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/redcon"
)

const _stream = "+OK\r\n" +
	"-ERR bad\r\n" +
	":42\r\n" +
	"$5\r\nhe\r\nl\r\n" +
	"$0\r\n\r\n" +
	"$-1\r\n" +
	"*3\r\n:1\r\n$1\r\nv\r\n*-1\r\n" +
	"*0\r\n" +
	"*2\r\n*1\r\n:-7\r\n+x\r\n"

func expectedReplies() []Reply {
	return []Reply{
		NewSimpleString("OK"),
		NewError("ERR bad"),
		NewInteger(42),
		NewBulkString("he\r\nl"),
		NewBulkString(""),
		Null(),
		NewArray(NewInteger(1), NewBulkString("v"), Null()),
		NewArray(),
		NewArray(NewArray(NewInteger(-7)), NewSimpleString("x")),
	}
}

func feedAll(t *testing.T, p *ReplyParser, chunks ...string) []Reply {
	t.Helper()
	var got []Reply
	for _, c := range chunks {
		require.NoError(t, p.Feed([]byte(c), func(r Reply) { got = append(got, r) }))
	}
	return got
}

func TestParserWholeStream(t *testing.T) {
	p := NewReplyParser()
	got := feedAll(t, p, _stream)
	assert.Equal(t, expectedReplies(), got)
	assert.Zero(t, p.Buffered())
}

func TestParserSplitAtEveryByte(t *testing.T) {
	want := expectedReplies()
	for i := 0; i <= len(_stream); i++ {
		p := NewReplyParser()
		got := feedAll(t, p, _stream[:i], _stream[i:])
		require.Equal(t, want, got, "split at %d", i)
	}
}

func TestParserByteByByte(t *testing.T) {
	p := NewReplyParser()
	chunks := make([]string, len(_stream))
	for i := range _stream {
		chunks[i] = _stream[i : i+1]
	}
	assert.Equal(t, expectedReplies(), feedAll(t, p, chunks...))
}

func TestParserSuspendKeepsPartial(t *testing.T) {
	p := NewReplyParser()
	assert.Empty(t, feedAll(t, p, "$10\r\n0123"))
	assert.Equal(t, 4, p.Buffered())
	got := feedAll(t, p, "456789\r\n")
	assert.Equal(t, []Reply{NewBulkString("0123456789")}, got)

	p.Reset()
	assert.Zero(t, p.Buffered())
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"integer", ":abc\r\n", ErrInvalidInteger},
		{"bulk length", "$x\r\nab\r\n", ErrInvalidInteger},
		{"array length", "*1a\r\n", ErrInvalidInteger},
		{"type byte", "?what\r\n", ErrInvalidReply},
		{"bulk terminator", "$1\r\nab\r\n", ErrInvalidReply},
		{"bulk length overflow", "$9223372036854775807\r\nabc", ErrInvalidReply},
		{"bulk too large", "$536870913\r\n", ErrInvalidReply},
		{"array length overflow", "*9223372036854775807\r\n", ErrInvalidReply},
		{"array too large", "*1048577\r\n", ErrInvalidReply},
		{"nested array too large", "*1\r\n*1048577\r\n", ErrInvalidReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewReplyParser()
			err := p.Feed([]byte(tt.input), func(Reply) {})
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParserLargeCountsWithinLimit(t *testing.T) {
	p := NewReplyParser()
	var got []Reply
	require.NotPanics(t, func() {
		require.NoError(t, p.Feed([]byte("*1048576\r\n:1\r\n"), func(r Reply) { got = append(got, r) }))
		require.NoError(t, p.Feed([]byte("$536870912\r\nab"), func(r Reply) { got = append(got, r) }))
	})
	assert.Empty(t, got)
	assert.Positive(t, p.Buffered())

	p.Reset()
	got = feedAll(t, p, "*2\r\n:1\r\n:2\r\n")
	assert.Equal(t, []Reply{NewArray(NewInteger(1), NewInteger(2))}, got)
}

func TestParserEmitsBeforeError(t *testing.T) {
	p := NewReplyParser()
	var got []Reply
	err := p.Feed([]byte(":1\r\n:2\r\n!\r\n"), func(r Reply) { got = append(got, r) })
	assert.ErrorIs(t, err, ErrInvalidReply)
	assert.Equal(t, []Reply{NewInteger(1), NewInteger(2)}, got)
}

func TestEncodeCommand(t *testing.T) {
	cmd := Command{"hset", "k", "f", "v\r\n"}
	assert.Equal(t, "*4\r\n$4\r\nhset\r\n$1\r\nk\r\n$1\r\nf\r\n$3\r\nv\r\n\r\n", string(EncodeCommand(cmd)))
	assert.Equal(t, "HSET", cmd.Name())
	assert.Equal(t, "", Command{}.Name())

	want := redcon.AppendArray(nil, len(cmd))
	for _, arg := range cmd {
		want = redcon.AppendBulkString(want, arg)
	}
	assert.Equal(t, want, EncodeCommand(cmd))
}

func TestReplyAccessors(t *testing.T) {
	r := NewArray(NewBulkString("a"), NewBulkString("1"), NewBulkString("b"), NewBulkString("2"))
	assert.Equal(t, KindArray, r.Kind())
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, r.StringMap())
	assert.Equal(t, `Array[BulkString("a"), BulkString("1"), BulkString("b"), BulkString("2")]`, r.String())

	assert.True(t, Null().IsNull())
	assert.Equal(t, "Null", Null().String())
	assert.Equal(t, "Integer(1)", NewInteger(1).String())
	assert.NoError(t, NewSimpleString("OK").Err())
	assert.EqualError(t, NewError("ERR x").Err(), "ERR x")
	assert.Equal(t, "bulk_string", KindBulkString.String())
}
