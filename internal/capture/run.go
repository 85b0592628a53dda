package capture

import "context"

// Handler receives canonical key events in arrival order.
type Handler interface {
	OnKeyDown(id string, ts float64)
	OnKeyUp(id string, ts float64)
}

// Source delivers raw key events until it is exhausted or ctx is done.
type Source interface {
	Events(ctx context.Context) (<-chan RawEvent, error)
}

// Run feeds events into h until a stop key is pressed, the channel is closed,
// or ctx is done. Stop key releases are dropped. It returns nil on a stop key or a closed channel and
// ctx.Err() otherwise. Run never reorders events.
func Run(ctx context.Context, events <-chan RawEvent, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			id := Normalize(ev.Key)
			if id == "" {
				continue
			}
			if IsStop(id) {
				if ev.Kind == KeyDown {
					return nil
				}
				// A release of the stop key can trail in from the previous capture.
				continue
			}
			switch ev.Kind {
			case KeyDown:
				h.OnKeyDown(id, ev.Time)
			case KeyUp:
				h.OnKeyUp(id, ev.Time)
			}
		}
	}
}

// Replay feeds a recorded event slice into h, stopping at the first stop key.
func Replay(events []RawEvent, h Handler) {
	ch := make(chan RawEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	_ = Run(context.Background(), ch, h)
}
