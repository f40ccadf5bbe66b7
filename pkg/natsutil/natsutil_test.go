package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
)

type capturePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (p *capturePublisher) PublishMsg(msg *nats.Msg) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type issueEvent struct {
	ResourceName string `json:"resourceName"`
	CrashCount   int    `json:"crashCount"`
}

func TestPublish(t *testing.T) {
	pub := &capturePublisher{}
	evt := issueEvent{ResourceName: "esx_banking", CrashCount: 3}

	if err := Publish(context.Background(), pub, SubjectCrashReported, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Subject != SubjectCrashReported {
		t.Errorf("subject = %s", msg.Subject)
	}
	var got issueEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got != evt {
		t.Errorf("round trip = %+v", got)
	}
}

func TestPublishNilConnIsNoop(t *testing.T) {
	if err := Publish[issueEvent](context.Background(), nil, SubjectCrashReported, issueEvent{}); err != nil {
		t.Fatalf("nil conn must be a no-op, got %v", err)
	}
}

func TestPublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("no responders")}
	if err := Publish(context.Background(), pub, SubjectIssueFixed, issueEvent{}); err == nil {
		t.Fatal("expected publish error")
	}
}

type captureSubscriber struct {
	subject string
	cb      nats.MsgHandler
}

func (s *captureSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	s.subject = subject
	s.cb = cb
	return &nats.Subscription{}, nil
}

func TestSubscribeDecodesAndDropsMalformed(t *testing.T) {
	sub := &captureSubscriber{}
	var got []issueEvent
	if _, err := Subscribe(sub, SubjectCrashReported, func(_ context.Context, e issueEvent) {
		got = append(got, e)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.subject != SubjectCrashReported {
		t.Fatalf("subject = %s", sub.subject)
	}

	sub.cb(&nats.Msg{Data: []byte(`{"resourceName":"qb-garage","crashCount":1}`)})
	sub.cb(&nats.Msg{Data: []byte(`not json`)})

	if len(got) != 1 || got[0].ResourceName != "qb-garage" {
		t.Fatalf("handler saw %+v", got)
	}
}
