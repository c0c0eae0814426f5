package eventing

import "context"

// Publisher records events in the outbox and relays them immediately.
type Publisher struct {
	outbox   OutboxStore
	dispatch *Dispatcher
	tenantID string
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxStore, dispatch *Dispatcher, tenantID string) *Publisher {
	return &Publisher{outbox: outbox, dispatch: dispatch, tenantID: tenantID}
}

// Publish writes the event to the outbox and triggers dispatch. Delivery
// errors stay in the outbox and do not fail the publish.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.tenantID))
	if err != nil {
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return err
	}
	if p.dispatch != nil {
		if _, err := p.dispatch.Dispatch(ctx, defaultBatchSize); err != nil {
			p.dispatch.logger.Printf("outbox dispatch error: %v", err)
		}
	}
	return nil
}
