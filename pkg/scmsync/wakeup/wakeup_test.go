package wakeup

import (
	"context"
	"testing"
)

func TestPublisherNilReceiverPublishIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(context.Background(), nil, "gitlab_commits")
}

func TestPublisherZeroValuePublishIsNoop(t *testing.T) {
	p := &Publisher{}
	p.Publish(context.Background(), nil, "gitlab_commits")
}

func TestNewSubscriberNilClientReturnsNil(t *testing.T) {
	if sub := NewSubscriber(context.Background(), nil); sub != nil {
		t.Fatal("expected a nil client to yield a nil subscriber")
	}
}

func TestNilSubscriberChannelIsNil(t *testing.T) {
	var sub *Subscriber
	if sub.C() != nil {
		t.Fatal("expected a nil subscriber's channel to be nil")
	}
}

func TestNilSubscriberCloseIsNoop(t *testing.T) {
	var sub *Subscriber
	if err := sub.Close(); err != nil {
		t.Fatalf("expected a nil subscriber's Close to be a no-op, got %v", err)
	}
}
