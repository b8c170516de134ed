package async

import (
	"errors"

	gc "gopkg.in/check.v1"
)

type QueueSuite struct{}

func (s *QueueSuite) TestOperationsRunInOrder(c *gc.C) {
	var q = NewQueue(2)

	var out []int
	var ops []OpFuture
	for i := 0; i != 50; i++ {
		var i = i
		ops = append(ops, q.Submit(func() error {
			out = append(out, i)
			return nil
		}))
	}
	c.Check(All(ops...).Err(), gc.IsNil)
	q.Close()

	c.Assert(out, gc.HasLen, 50)
	for i, v := range out {
		c.Check(v, gc.Equals, i)
	}
}

func (s *QueueSuite) TestErrorsAreReturned(c *gc.C) {
	var q = NewQueue(0)
	defer q.Close()

	var expect = errors.New("whoops")
	c.Check(q.Submit(func() error { return expect }).Err(), gc.Equals, expect)
	c.Check(q.Submit(func() error { return nil }).Err(), gc.IsNil)
}

func (s *QueueSuite) TestCloseAwaitsPendingAndRejectsNew(c *gc.C) {
	var q = NewQueue(4)
	var release = make(chan struct{})
	var ran bool

	var a = q.Submit(func() error { <-release; return nil })
	var b = q.Submit(func() error { ran = true; return nil })

	var closed = make(chan struct{})
	go func() { q.Close(); close(closed) }()

	close(release)
	<-closed

	c.Check(IsDone(a), gc.Equals, true)
	c.Check(IsDone(b), gc.Equals, true)
	c.Check(ran, gc.Equals, true)

	c.Check(q.Submit(func() error { return nil }).Err(), gc.Equals, ErrQueueClosed)
	q.Close() // Idempotent.
}

var _ = gc.Suite(&QueueSuite{})
