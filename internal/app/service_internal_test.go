package service

import (
	"context"
	"errors"
	"testing"

	eventqueue "github.com/okian/feedrank/internal/adapters/mq/queue"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fullQueue struct {
	eventqueue.Queue
}

func (fullQueue) Enqueue(context.Context, eventqueue.Event) error { return eventqueue.ErrFull }

func TestEnqueueBackpressure(t *testing.T) {
	Convey("Given a service whose queue is full", t, func() {
		ctx := context.Background()
		svc := New(WithLogger(logger.NewNop()), WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		orig := svc.queue
		svc.queue = fullQueue{Queue: orig}

		Convey("When an interaction is enqueued", func() {
			in := model.Interaction{EventID: "evt-9", UserID: "u", ItemID: "i", Kind: model.KindClick}
			dup, err := svc.Enqueue(ctx, in)

			Convey("Then ErrFull is returned and the id is forgotten", func() {
				So(dup, ShouldBeFalse)
				So(errors.Is(err, eventqueue.ErrFull), ShouldBeTrue)
				So(svc.deduper.Size(), ShouldEqual, int64(0))
			})

			Convey("And a retry after the queue drains is accepted", func() {
				svc.queue = orig
				dup, err := svc.Enqueue(ctx, in)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
			})
		})
	})
}
