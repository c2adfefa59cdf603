package service

import (
	"context"
	"errors"

	"github.com/1a2yd09/gpu-scheduling-algorithm/config"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/allocator/allocator"
	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/rabbitmq"
	"k8s.io/klog/v2"
)

// ConsumePlanRequests answers plan requests from config.PlanRequestQueue on
// config.PlanResponseQueue until ctx is done or the broker closes the
// delivery channel. Requests are answered one at a time.
func (s *Service) ConsumePlanRequests(ctx context.Context) error {
	if s.mqConn == nil {
		return errors.New("no rabbit-mq connection")
	}
	msgs, err := rabbitmq.ReceiveFromQueue(s.mqConn, config.PlanRequestQueue)
	if err != nil {
		return err
	}
	klog.InfoS("Consuming plan requests", "queue", config.PlanRequestQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				klog.InfoS("Delivery channel closed", "queue", config.PlanRequestQueue)
				return nil
			}
			reply := s.reply(ctx, msg)
			if err := rabbitmq.PublishToQueue(s.mqConn, config.PlanResponseQueue, reply); err != nil {
				klog.ErrorS(err, "Failed to publish reply", "request", reply.RequestID,
					"queue", config.PlanResponseQueue)
			}
		}
	}
}

// reply computes the answer to a single queued message. It never fails: any
// error is sent back as a VerbError message.
func (s *Service) reply(ctx context.Context, msg rabbitmq.Msg) rabbitmq.Msg {
	if msg.Verb != rabbitmq.VerbPlan {
		return errorMsg(msg.RequestID, errors.New("unsupported verb "+string(msg.Verb)))
	}
	var req allocator.PlanRequest
	if err := msg.Decode(&req); err != nil {
		return errorMsg(msg.RequestID, err)
	}
	if req.RequestID == "" {
		req.RequestID = msg.RequestID
	}
	req = allocator.Normalize(req)

	a, err := s.plan(ctx, req, sourceQueue)
	if err != nil {
		return errorMsg(req.RequestID, err)
	}
	out, err := rabbitmq.NewMsg(rabbitmq.VerbResult, req.RequestID, a.Response())
	if err != nil {
		return errorMsg(req.RequestID, err)
	}
	return out
}

func errorMsg(requestID string, err error) rabbitmq.Msg {
	// a string always encodes
	msg, _ := rabbitmq.NewMsg(rabbitmq.VerbError, requestID, err.Error())
	return msg
}
