package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"dsf/internal/domain"
)

// RequestKind is one member of the closed set of control-plane requests.
type RequestKind interface {
	// Kind is the wire name of the request.
	Kind() string
	// Expects is the wire name of the single success response.
	Expects() string

	isRequest()
}

// Request kind names.
const (
	KindStatus = "status"

	KindPeerList    = "peer.list"
	KindPeerConnect = "peer.connect"
	KindPeerInfo    = "peer.info"
	KindPeerRemove  = "peer.remove"
	KindPeerBlock   = "peer.block"
	KindPeerUnblock = "peer.unblock"

	KindServiceList        = "service.list"
	KindServiceInfo        = "service.info"
	KindServiceCreate      = "service.create"
	KindServiceSearch      = "service.search"
	KindServiceRegister    = "service.register"
	KindServiceSubscribe   = "service.subscribe"
	KindServiceUnsubscribe = "service.unsubscribe"
	KindServiceSetKey      = "service.set_key"

	KindDataList    = "data.list"
	KindDataSync    = "data.sync"
	KindDataQuery   = "data.query"
	KindDataPublish = "data.publish"

	KindNsSearch   = "ns.search"
	KindNsRegister = "ns.register"

	KindPageFetch = "page.fetch"

	KindSubscriberList = "subscriber.list"

	KindConfigAddAddress    = "config.add_address"
	KindConfigRemoveAddress = "config.remove_address"

	KindDebugDatastore = "debug.datastore"
	KindDebugUpdate    = "debug.update"
	KindDebugBootstrap = "debug.bootstrap"

	KindStream = "stream"
)

// Status requests a daemon summary.
type Status struct{}

// PeerList lists known peers.
type PeerList struct {
	ListOptions
}

// PeerConnect dials a peer at an explicit address.
type PeerConnect struct {
	ConnectOptions
}

// PeerGet fetches one peer record.
type PeerGet struct {
	Peer domain.Identifier `json:"peer"`
}

// PeerRemove forgets a peer.
type PeerRemove struct {
	Peer domain.Identifier `json:"peer"`
}

// PeerBlock blocks a peer.
type PeerBlock struct {
	Peer domain.Identifier `json:"peer"`
}

// PeerUnblock unblocks a peer.
type PeerUnblock struct {
	Peer domain.Identifier `json:"peer"`
}

// ServiceList lists known services.
type ServiceList struct {
	ListOptions
}

// ServiceGet fetches one service record.
type ServiceGet struct {
	Service domain.Identifier `json:"service"`
}

// ServiceCreate creates a service owned by the daemon.
type ServiceCreate struct {
	CreateOptions
}

// ServiceSearch locates a service on the network.
type ServiceSearch struct {
	LocateOptions
}

// ServiceRegister publishes a service's primary page.
type ServiceRegister struct {
	Service domain.Identifier `json:"service"`
	RegisterOptions
}

// ServiceSubscribe subscribes to a service's data.
type ServiceSubscribe struct {
	Service domain.Identifier `json:"service"`
	SubscribeOptions
}

// ServiceUnsubscribe drops a subscription.
type ServiceUnsubscribe struct {
	Service domain.Identifier `json:"service"`
}

// ServiceSetKey sets or clears the data key of a service.
type ServiceSetKey struct {
	SetKeyOptions
}

// DataList lists stored data pages of a service.
type DataList struct {
	Service domain.Identifier `json:"service"`
	Page    domain.PageBounds `json:"page"`
	Time    domain.TimeBounds `json:"time"`
}

// DataSync forces a data synchronisation round.
type DataSync struct{}

// DataQuery fetches the latest data of a service from the network.
type DataQuery struct {
	Service domain.Identifier `json:"service"`
}

// DataPublish publishes a data page.
type DataPublish struct {
	PublishOptions
}

// NsSearch searches a name service.
type NsSearch struct {
	NsSearchOptions
}

// NsRegister registers a service with a name service.
type NsRegister struct {
	NsRegisterOptions
}

// PageFetch fetches a page by signature.
type PageFetch struct {
	FetchOptions
}

// SubscriberList lists a service's subscribers.
type SubscriberList struct {
	Service domain.Identifier `json:"service"`
}

// ConfigAddAddress adds an external address for the daemon.
type ConfigAddAddress struct {
	Address domain.Address `json:"address"`
}

// ConfigRemoveAddress removes an external address.
type ConfigRemoveAddress struct {
	Address domain.Address `json:"address"`
}

// DebugDatastore dumps the daemon datastore.
type DebugDatastore struct{}

// DebugUpdate forces an update sweep.
type DebugUpdate struct{}

// DebugBootstrap re-runs network bootstrap.
type DebugBootstrap struct{}

// Stream streams a service's data until cancelled.
type Stream struct {
	StreamOptions
}

func (Status) Kind() string              { return KindStatus }
func (PeerList) Kind() string            { return KindPeerList }
func (PeerConnect) Kind() string         { return KindPeerConnect }
func (PeerGet) Kind() string             { return KindPeerInfo }
func (PeerRemove) Kind() string          { return KindPeerRemove }
func (PeerBlock) Kind() string           { return KindPeerBlock }
func (PeerUnblock) Kind() string         { return KindPeerUnblock }
func (ServiceList) Kind() string         { return KindServiceList }
func (ServiceGet) Kind() string          { return KindServiceInfo }
func (ServiceCreate) Kind() string       { return KindServiceCreate }
func (ServiceSearch) Kind() string       { return KindServiceSearch }
func (ServiceRegister) Kind() string     { return KindServiceRegister }
func (ServiceSubscribe) Kind() string    { return KindServiceSubscribe }
func (ServiceUnsubscribe) Kind() string  { return KindServiceUnsubscribe }
func (ServiceSetKey) Kind() string       { return KindServiceSetKey }
func (DataList) Kind() string            { return KindDataList }
func (DataSync) Kind() string            { return KindDataSync }
func (DataQuery) Kind() string           { return KindDataQuery }
func (DataPublish) Kind() string         { return KindDataPublish }
func (NsSearch) Kind() string            { return KindNsSearch }
func (NsRegister) Kind() string          { return KindNsRegister }
func (PageFetch) Kind() string           { return KindPageFetch }
func (SubscriberList) Kind() string      { return KindSubscriberList }
func (ConfigAddAddress) Kind() string    { return KindConfigAddAddress }
func (ConfigRemoveAddress) Kind() string { return KindConfigRemoveAddress }
func (DebugDatastore) Kind() string      { return KindDebugDatastore }
func (DebugUpdate) Kind() string         { return KindDebugUpdate }
func (DebugBootstrap) Kind() string      { return KindDebugBootstrap }
func (Stream) Kind() string              { return KindStream }

func (Status) Expects() string              { return KindStatusInfo }
func (PeerList) Expects() string            { return KindPeers }
func (PeerConnect) Expects() string         { return KindConnected }
func (PeerGet) Expects() string             { return KindPeers }
func (PeerRemove) Expects() string          { return KindPeers }
func (PeerBlock) Expects() string           { return KindPeers }
func (PeerUnblock) Expects() string         { return KindPeers }
func (ServiceList) Expects() string         { return KindServices }
func (ServiceGet) Expects() string          { return KindServices }
func (ServiceCreate) Expects() string       { return KindCreated }
func (ServiceSearch) Expects() string       { return KindLocated }
func (ServiceRegister) Expects() string     { return KindRegistered }
func (ServiceSubscribe) Expects() string    { return KindSubscribed }
func (ServiceUnsubscribe) Expects() string  { return KindNone }
func (ServiceSetKey) Expects() string       { return KindServices }
func (DataList) Expects() string            { return KindData }
func (DataSync) Expects() string            { return KindNone }
func (DataQuery) Expects() string           { return KindData }
func (DataPublish) Expects() string         { return KindPublished }
func (NsSearch) Expects() string            { return KindServices }
func (NsRegister) Expects() string          { return KindNsRegistered }
func (PageFetch) Expects() string           { return KindData }
func (SubscriberList) Expects() string      { return KindSubscribers }
func (ConfigAddAddress) Expects() string    { return KindNone }
func (ConfigRemoveAddress) Expects() string { return KindNone }
func (DebugDatastore) Expects() string      { return KindDatastore }
func (DebugUpdate) Expects() string         { return KindNone }
func (DebugBootstrap) Expects() string      { return KindNone }
func (Stream) Expects() string              { return KindData }

func (Status) isRequest()              {}
func (PeerList) isRequest()            {}
func (PeerConnect) isRequest()         {}
func (PeerGet) isRequest()             {}
func (PeerRemove) isRequest()          {}
func (PeerBlock) isRequest()           {}
func (PeerUnblock) isRequest()         {}
func (ServiceList) isRequest()         {}
func (ServiceGet) isRequest()          {}
func (ServiceCreate) isRequest()       {}
func (ServiceSearch) isRequest()       {}
func (ServiceRegister) isRequest()     {}
func (ServiceSubscribe) isRequest()    {}
func (ServiceUnsubscribe) isRequest()  {}
func (ServiceSetKey) isRequest()       {}
func (DataList) isRequest()            {}
func (DataSync) isRequest()            {}
func (DataQuery) isRequest()           {}
func (DataPublish) isRequest()         {}
func (NsSearch) isRequest()            {}
func (NsRegister) isRequest()          {}
func (PageFetch) isRequest()           {}
func (SubscriberList) isRequest()      {}
func (ConfigAddAddress) isRequest()    {}
func (ConfigRemoveAddress) isRequest() {}
func (DebugDatastore) isRequest()      {}
func (DebugUpdate) isRequest()         {}
func (DebugBootstrap) isRequest()      {}
func (Stream) isRequest()              {}

var requestKinds = indexKinds([]RequestKind{
	Status{},
	PeerList{}, PeerConnect{}, PeerGet{}, PeerRemove{}, PeerBlock{}, PeerUnblock{},
	ServiceList{}, ServiceGet{}, ServiceCreate{}, ServiceSearch{}, ServiceRegister{},
	ServiceSubscribe{}, ServiceUnsubscribe{}, ServiceSetKey{},
	DataList{}, DataSync{}, DataQuery{}, DataPublish{},
	NsSearch{}, NsRegister{},
	PageFetch{},
	SubscriberList{},
	ConfigAddAddress{}, ConfigRemoveAddress{},
	DebugDatastore{}, DebugUpdate{}, DebugBootstrap{},
	Stream{},
})

// RequestKinds returns every request kind name, sorted.
func RequestKinds() []string {
	names := make([]string, 0, len(requestKinds))
	for name := range requestKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mutating reports whether a request changes daemon or network state.
// Mutating requests are not blindly retried after a timeout.
func Mutating(k RequestKind) bool {
	switch k.(type) {
	case Status, PeerList, PeerGet, ServiceList, ServiceGet, ServiceSearch,
		DataList, DataQuery, NsSearch, PageFetch, SubscriberList, DebugDatastore, Stream:
		return false
	default:
		return true
	}
}

// Target names the record a request acts on, for logs and audit entries.
func Target(k RequestKind) string {
	switch r := k.(type) {
	case PeerGet:
		return r.Peer.String()
	case PeerRemove:
		return r.Peer.String()
	case PeerBlock:
		return r.Peer.String()
	case PeerUnblock:
		return r.Peer.String()
	case PeerConnect:
		return r.Address.String()
	case ServiceGet:
		return r.Service.String()
	case ServiceSearch:
		return r.ID.String()
	case ServiceRegister:
		return r.Service.String()
	case ServiceSubscribe:
		return r.Service.String()
	case ServiceUnsubscribe:
		return r.Service.String()
	case ServiceSetKey:
		return r.Service.String()
	case DataList:
		return r.Service.String()
	case DataQuery:
		return r.Service.String()
	case DataPublish:
		return r.Service.String()
	case NsSearch:
		return r.NS.String()
	case NsRegister:
		return r.NS.String()
	case PageFetch:
		return r.Service.String()
	case SubscriberList:
		return r.Service.String()
	case ConfigAddAddress:
		return r.Address.String()
	case ConfigRemoveAddress:
		return r.Address.String()
	case Stream:
		return r.Service.String()
	}
	return ""
}

func decodeRequestKind(name string, body json.RawMessage) (RequestKind, error) {
	t, ok := requestKinds[name]
	if !ok {
		return nil, &UnknownKindError{Name: name, Request: true}
	}
	v, err := decodeInto(t, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, name, err)
	}
	return v.(RequestKind), nil
}

type named interface{ Kind() string }

func indexKinds[T named](kinds []T) map[string]reflect.Type {
	m := make(map[string]reflect.Type, len(kinds))
	for _, k := range kinds {
		if _, dup := m[k.Kind()]; dup {
			panic("rpc: duplicate kind " + k.Kind())
		}
		m[k.Kind()] = reflect.TypeOf(k)
	}
	return m
}

func decodeInto(t reflect.Type, body json.RawMessage) (any, error) {
	ptr := reflect.New(t)
	if len(body) > 0 && string(body) != "null" {
		if err := json.Unmarshal(body, ptr.Interface()); err != nil {
			return nil, err
		}
	}
	return ptr.Elem().Interface(), nil
}
