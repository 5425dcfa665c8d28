package daemon

import (
	"sync"

	"dsf/internal/domain"
)

// streamBuffer is how many pages a stream may fall behind before pages are
// dropped for it.
const streamBuffer = 64

// hub fans data pages out to open control-plane streams.
type hub struct {
	mu   sync.Mutex
	subs map[domain.ID]map[uint32]chan domain.DataInfo
}

func newHub() *hub {
	return &hub{subs: make(map[domain.ID]map[uint32]chan domain.DataInfo)}
}

func (h *hub) subscribe(service domain.ID, socket uint32) <-chan domain.DataInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	socks, ok := h.subs[service]
	if !ok {
		socks = make(map[uint32]chan domain.DataInfo)
		h.subs[service] = socks
	}
	ch := make(chan domain.DataInfo, streamBuffer)
	socks[socket] = ch
	return ch
}

func (h *hub) unsubscribe(service domain.ID, socket uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socks := h.subs[service]
	delete(socks, socket)
	if len(socks) == 0 {
		delete(h.subs, service)
	}
}

// deliver sends d to every stream on its service and returns how many
// streams were too slow to take it.
func (h *hub) deliver(d domain.DataInfo) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := 0
	for _, ch := range h.subs[d.Service] {
		select {
		case ch <- d:
		default:
			dropped++
		}
	}
	return dropped
}

// streams returns the number of open streams on a service.
func (h *hub) streams(service domain.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[service])
}
