package redis

import (
	"strconv"
	"time"
)

// Get: GET key.
func (c *Client) Get(key string, cb ReplyFunc) {
	c.Send(Command{"GET", key}, cb)
	c.Commit()
}

// Set: SET key value, with PX when ttl > 0.
func (c *Client) Set(key, value string, ttl time.Duration, cb ReplyFunc) {
	c.Send(setCommand(key, value, ttl), cb)
	c.Commit()
}

func (c *Client) Del(cb ReplyFunc, keys ...string) {
	c.Send(append(Command{"DEL"}, keys...), cb)
	c.Commit()
}

func (c *Client) Expire(key string, ttl time.Duration, cb ReplyFunc) {
	c.Send(Command{"PEXPIRE", key, strconv.FormatInt(ttl.Milliseconds(), 10)}, cb)
	c.Commit()
}

func (c *Client) Incr(key string, cb ReplyFunc) {
	c.Send(Command{"INCR", key}, cb)
	c.Commit()
}

func (c *Client) HSet(key, field, value string, cb ReplyFunc) {
	c.Send(Command{"HSET", key, field, value}, cb)
	c.Commit()
}

func (c *Client) HGet(key, field string, cb ReplyFunc) {
	c.Send(Command{"HGET", key, field}, cb)
	c.Commit()
}

// HGetAll: the reply is an array of field/value pairs, see Reply.StringMap.
func (c *Client) HGetAll(key string, cb ReplyFunc) {
	c.Send(Command{"HGETALL", key}, cb)
	c.Commit()
}

func (c *Client) HDel(key string, cb ReplyFunc, fields ...string) {
	c.Send(append(Command{"HDEL", key}, fields...), cb)
	c.Commit()
}

// XAdd appends an entry with an auto id to a stream. kv alternates field
// and value.
func (c *Client) XAdd(stream string, kv []string, cb ReplyFunc) {
	cmd := make(Command, 0, 3+len(kv))
	cmd = append(cmd, "XADD", stream, "*")
	cmd = append(cmd, kv...)
	c.Send(cmd, cb)
	c.Commit()
}

func (c *Client) Publish(channel, message string, cb ReplyFunc) {
	c.Send(Command{"PUBLISH", channel, message}, cb)
	c.Commit()
}

// HSetBlocking returns the number of fields added.
func (c *Client) HSetBlocking(key, field, value string) (int64, error) {
	r, err := c.SendAndCommitBlocking(Command{"HSET", key, field, value})
	if err != nil {
		return 0, err
	}
	if err := r.Err(); err != nil {
		return 0, err
	}
	return r.Integer(), nil
}

// HGetBlocking returns the value and whether the field exists.
func (c *Client) HGetBlocking(key, field string) (string, bool, error) {
	return stringReply(c.SendAndCommitBlocking(Command{"HGET", key, field}))
}

// GetBlocking returns the value and whether the key exists.
func (c *Client) GetBlocking(key string) (string, bool, error) {
	return stringReply(c.SendAndCommitBlocking(Command{"GET", key}))
}

func (c *Client) SetBlocking(key, value string, ttl time.Duration) error {
	r, err := c.SendAndCommitBlocking(setCommand(key, value, ttl))
	if err != nil {
		return err
	}
	return r.Err()
}

func setCommand(key, value string, ttl time.Duration) Command {
	if ttl > 0 {
		return Command{"SET", key, value, "PX", strconv.FormatInt(ttl.Milliseconds(), 10)}
	}
	return Command{"SET", key, value}
}

func stringReply(r Reply, err error) (string, bool, error) {
	if err != nil {
		return "", false, err
	}
	if err := r.Err(); err != nil {
		return "", false, err
	}
	if r.IsNull() {
		return "", false, nil
	}
	return r.Str(), true, nil
}
