package async

import (
	"errors"
	"time"

	gc "gopkg.in/check.v1"
)

type OpFutureSuite struct{}

func (s *OpFutureSuite) TestResolveWakesWaiters(c *gc.C) {
	var op = NewAsyncOperation()
	c.Check(IsDone(op), gc.Equals, false)

	var errCh = make(chan error)
	go func() { errCh <- op.Err() }()

	select {
	case <-errCh:
		c.Fatal("Err returned before Resolve")
	case <-time.After(5 * time.Millisecond):
		// Pass.
	}

	var expect = errors.New("whoops")
	op.Resolve(expect)

	c.Check(<-errCh, gc.Equals, expect)
	c.Check(IsDone(op), gc.Equals, true)
}

func (s *OpFutureSuite) TestFinishedOperation(c *gc.C) {
	var op = FinishedOperation(nil)
	c.Check(IsDone(op), gc.Equals, true)
	c.Check(op.Err(), gc.IsNil)
}

func (s *OpFutureSuite) TestAllReturnsFirstError(c *gc.C) {
	var a, b, d = NewAsyncOperation(), NewAsyncOperation(), NewAsyncOperation()
	var all = All(a, b, d)

	b.Resolve(errors.New("second"))
	d.Resolve(errors.New("third"))
	c.Check(IsDone(all), gc.Equals, false)

	a.Resolve(nil)
	c.Check(all.Err(), gc.ErrorMatches, "second")
}

func (s *OpFutureSuite) TestAllOfNothing(c *gc.C) {
	c.Check(All().Err(), gc.IsNil)
}

var _ = gc.Suite(&OpFutureSuite{})
