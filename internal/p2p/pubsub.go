package p2p

import (
	"context"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"

	"dsf/internal/domain"
)

// MaxMessageSize bounds one pubsub message; a page body plus its envelope.
const MaxMessageSize = 1 << 20

// DataHandler receives a payload published on a service topic.
type DataHandler func(ctx context.Context, from domain.ID, payload []byte)

// PubSub manages GossipSub topics, one per subscribed service.
type PubSub struct {
	host host.Host
	ps   *pubsub.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	topics   map[domain.ID]*pubsub.Topic
	subs     map[domain.ID]*pubsub.Subscription
	handlers map[domain.ID]DataHandler
}

// NewPubSub creates a GossipSub router on h.
func NewPubSub(ctx context.Context, h host.Host) (*PubSub, error) {
	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
		pubsub.WithMaxMessageSize(MaxMessageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gossipsub: %w", err)
	}

	psCtx, cancel := context.WithCancel(ctx)
	return &PubSub{
		host:     h,
		ps:       ps,
		ctx:      psCtx,
		cancel:   cancel,
		topics:   make(map[domain.ID]*pubsub.Topic),
		subs:     make(map[domain.ID]*pubsub.Subscription),
		handlers: make(map[domain.ID]DataHandler),
	}, nil
}

// Stop cancels every subscription and closes every topic.
func (p *PubSub) Stop() {
	p.cancel()

	p.mu.Lock()
	for id, sub := range p.subs {
		sub.Cancel()
		delete(p.subs, id)
	}
	for id, topic := range p.topics {
		_ = topic.Close()
		delete(p.topics, id)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Subscribe joins the service topic and delivers its messages to handler.
// Subscribing again replaces the handler.
func (p *PubSub) Subscribe(service domain.ID, handler DataHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[service] = handler
	if _, ok := p.subs[service]; ok {
		return nil
	}

	topic, err := p.joinLocked(service)
	if err != nil {
		return err
	}

	sub, err := topic.Subscribe()
	if err != nil {
		delete(p.handlers, service)
		return fmt.Errorf("failed to subscribe to %s: %w", ServiceTopic(service), err)
	}
	p.subs[service] = sub

	p.wg.Add(1)
	go p.handleMessages(service, sub)

	return nil
}

// Unsubscribe leaves the service topic. It reports whether a subscription
// existed.
func (p *PubSub) Unsubscribe(service domain.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.subs[service]
	if ok {
		sub.Cancel()
		delete(p.subs, service)
	}
	delete(p.handlers, service)

	if topic, ok := p.topics[service]; ok {
		// Close fails while other handles are open; the topic is rejoined on
		// the next publish in that case.
		if err := topic.Close(); err == nil {
			delete(p.topics, service)
		}
	}
	return ok
}

// Publish sends payload on the service topic. It returns the number of
// peers currently known on the topic.
func (p *PubSub) Publish(ctx context.Context, service domain.ID, payload []byte) (int, error) {
	p.mu.Lock()
	topic, err := p.joinLocked(service)
	p.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if err := topic.Publish(ctx, payload); err != nil {
		return 0, fmt.Errorf("publish on %s: %w", ServiceTopic(service), err)
	}
	return len(topic.ListPeers()), nil
}

// Subscribed returns the services with an active subscription.
func (p *PubSub) Subscribed() []domain.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]domain.ID, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	return ids
}

func (p *PubSub) joinLocked(service domain.ID) (*pubsub.Topic, error) {
	if topic, ok := p.topics[service]; ok {
		return topic, nil
	}
	topic, err := p.ps.Join(ServiceTopic(service))
	if err != nil {
		return nil, fmt.Errorf("failed to join topic %s: %w", ServiceTopic(service), err)
	}
	p.topics[service] = topic
	return topic, nil
}

func (p *PubSub) handleMessages(service domain.ID, sub *pubsub.Subscription) {
	defer p.wg.Done()
	log := getLogger("pubsub")

	for {
		msg, err := sub.Next(p.ctx)
		if err != nil {
			// cancelled subscription or stopped router
			return
		}

		if msg.ReceivedFrom == p.host.ID() {
			continue
		}

		from, err := IDFromPeerID(msg.GetFrom())
		if err != nil {
			log.Debug("dropping message from non-ed25519 peer", "from", msg.GetFrom(), "error", err)
			continue
		}

		p.mu.RLock()
		handler := p.handlers[service]
		p.mu.RUnlock()

		if handler != nil {
			handler(p.ctx, from, msg.Data)
		}
	}
}
